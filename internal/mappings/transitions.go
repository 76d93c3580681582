package mappings

import "fmt"

var transitions = map[Action]map[Status]Status{
	ActionApprove: {
		StatusGreen:  StatusApproved,
		StatusYellow: StatusApproved,
	},
	ActionReject: {
		StatusGreen:  StatusRejected,
		StatusYellow: StatusRejected,
	},
	ActionOverride: {
		StatusGreen:    StatusApproved,
		StatusYellow:   StatusApproved,
		StatusRejected: StatusApproved,
	},
}

// Transition returns the status an action moves a mapping to. Remap is valid
// from every status and returns the empty Status: its target is the tier of
// the fresh classification.
func Transition(from Status, action Action) (Status, error) {
	if action == ActionRemap {
		switch from {
		case StatusGreen, StatusYellow, StatusApproved, StatusRejected:
			return "", nil
		}
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}

	targets, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	to, ok := targets[from]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a %s mapping", ErrInvalidTransition, action, from)
	}
	return to, nil
}
