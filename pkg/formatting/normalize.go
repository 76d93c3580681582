package formatting

import "strings"

// Normalize case-folds s, trims it, and collapses each run of whitespace to a
// single space. Two labels that differ only in case or spacing normalize equal.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
