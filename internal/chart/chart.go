// Package chart exposes the standard chart of accounts that client accounts
// are mapped onto. The chart is reference data shared by all organizations.
package chart

// Account is one standard chart of accounts entry, identified by its code.
type Account struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Subcategory *string `json:"subcategory"`
}
