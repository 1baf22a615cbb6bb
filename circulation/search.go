package circulation

import (
	"strings"
)

// Predicate selects items in a Search.
type Predicate func(ItemView) bool

// MatchTitle matches titles containing the fragment, ignoring case. A blank fragment matches nothing.
func MatchTitle(fragment string) Predicate {
	return containsFold(fragment, func(v ItemView) string { return v.Title })
}

// MatchCreator matches creators containing the fragment, ignoring case. A blank fragment matches nothing.
func MatchCreator(fragment string) Predicate {
	return containsFold(fragment, func(v ItemView) string { return v.Creator })
}

// MatchCategory matches categories containing the fragment, ignoring case. A blank fragment matches nothing.
func MatchCategory(fragment string) Predicate {
	return containsFold(fragment, func(v ItemView) string { return v.Category })
}

// MatchKeyword matches items whose title, creator or category contains the keyword.
func MatchKeyword(keyword string) Predicate {
	return MatchAny(MatchTitle(keyword), MatchCreator(keyword), MatchCategory(keyword))
}

// MatchState matches items in the given issuance state.
func MatchState(state IssuanceState) Predicate {
	return func(v ItemView) bool { return v.State == state }
}

// MatchAll matches items every predicate matches.
func MatchAll(predicates ...Predicate) Predicate {
	return func(v ItemView) bool {
		for _, p := range predicates {
			if !p(v) {
				return false
			}
		}

		return true
	}
}

// MatchAny matches items at least one predicate matches.
func MatchAny(predicates ...Predicate) Predicate {
	return func(v ItemView) bool {
		for _, p := range predicates {
			if p(v) {
				return true
			}
		}

		return false
	}
}

func containsFold(fragment string, field func(ItemView) string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return func(ItemView) bool { return false }
	}

	return func(v ItemView) bool {
		return strings.Contains(strings.ToLower(field(v)), needle)
	}
}

// Search returns snapshots of the matching items ordered by title. A nil predicate matches every item.
func (e *Engine) Search(predicate Predicate) []ItemView {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	now := e.now()
	result := make([]ItemView, 0)
	for _, i := range e.catalog.sortedItems() {
		v := i.view(now)
		if predicate == nil || predicate(v) {
			result = append(result, v)
		}
	}

	return result
}
