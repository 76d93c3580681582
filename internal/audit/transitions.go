package audit

import "fmt"

var transitions = map[Status][]Status{
	StatusDraft: {StatusSent, StatusResolved},
	StatusSent:  {StatusResolved},
}

// Transition reports whether an open item may move from one status to
// another. Resolved items are final.
func Transition(from, to Status) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}
