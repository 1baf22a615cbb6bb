package circulation

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Category selects the loan policy of a holder.
type Category string

const (
	CategoryStudent   Category = "Student"
	CategoryTeacher   Category = "Teacher"
	CategoryGuest     Category = "Guest"
	CategoryLibrarian Category = "Librarian"
)

// Policy is the entitlement a Category grants.
type Policy struct {
	LoanDays   int
	MaxItems   int
	Privileged bool
}

// PolicyTable maps each known Category to its Policy.
type PolicyTable map[Category]Policy

// DefaultPolicies returns the standard entitlements of a public library.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		CategoryStudent:   {LoanDays: 14, MaxItems: 3},
		CategoryTeacher:   {LoanDays: 30, MaxItems: 5},
		CategoryGuest:     {LoanDays: 7, MaxItems: 1},
		CategoryLibrarian: {LoanDays: 60, MaxItems: 10, Privileged: true},
	}
}

// Lookup returns the policy for the category.
func (t PolicyTable) Lookup(category Category) (Policy, error) {
	policy, ok := t[category]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	return policy, nil
}

// Categories returns the categories of the table in a stable order.
func (t PolicyTable) Categories() []Category {
	return slices.Sorted(maps.Keys(t))
}

func (t PolicyTable) validate() error {
	if len(t) == 0 {
		return ValidationError{Field: "policies", Reason: "must not be empty"}
	}

	for category, policy := range t {
		if strings.TrimSpace(string(category)) == "" {
			return ValidationError{Field: "policies", Reason: "category name must not be blank"}
		}

		if policy.LoanDays <= 0 {
			return ValidationError{Field: "policies." + string(category) + ".loan_days", Reason: "must be positive"}
		}

		if policy.MaxItems <= 0 {
			return ValidationError{Field: "policies." + string(category) + ".max_items", Reason: "must be positive"}
		}
	}

	return nil
}

// ParseCategory matches a category name case-insensitively against the table.
func (t PolicyTable) ParseCategory(name string) (Category, error) {
	name = strings.TrimSpace(name)
	for category := range t {
		if strings.EqualFold(string(category), name) {
			return category, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}
