package flux

import "slices"

// ByStore selects changes of the stores with the given ids.
func ByStore(ids ...string) ChangeFilter {
	return func(c StoreChange) bool {
		return slices.Contains(ids, c.Store.ID())
	}
}

// ByAction selects changes caused by actions of the given channels.
func ByAction(channels ...*Channel) ChangeFilter {
	return func(c StoreChange) bool {
		return slices.ContainsFunc(channels, c.Action.Is)
	}
}

// StateHolds selects changes whose state is a T satisfying pred.
func StateHolds[T any](pred func(T) bool) ChangeFilter {
	return func(c StoreChange) bool {
		v, ok := c.State.(T)
		return ok && pred(v)
	}
}

// AnyOf selects changes matched by at least one filter.
func AnyOf(filters ...ChangeFilter) ChangeFilter {
	return func(c StoreChange) bool {
		for _, f := range filters {
			if f(c) {
				return true
			}
		}
		return false
	}
}

// AllOf selects changes matched by every filter.
func AllOf(filters ...ChangeFilter) ChangeFilter {
	return func(c StoreChange) bool {
		for _, f := range filters {
			if !f(c) {
				return false
			}
		}
		return true
	}
}
