package scenario

import (
	"fmt"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/roach88/fluxr/internal/canonical"
	"github.com/roach88/fluxr/internal/debug"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func (r *runner) assert(a Assertion) error {
	view := r.result.History

	switch a.Type {
	case AssertState:
		return assertState(a, r.result.States[a.Store])
	case AssertHistoryLen:
		if len(view.States) != *a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d snapshots", *a.Count),
				Actual:   fmt.Sprintf("%d", len(view.States)),
			}
		}
	case AssertInactive:
		var got []int
		for i, s := range view.States {
			if s.Inactive {
				got = append(got, i)
			}
		}
		want := slices.Sorted(slices.Values(a.Indices))
		if !slices.Equal(got, want) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("inactive %v", want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	case AssertCurrent:
		if view.CurrentState != *a.Index {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("current %d", *a.Index),
				Actual:   fmt.Sprintf("%d", view.CurrentState),
			}
		}
	case AssertKeys:
		if got := view.Keys(); !slices.Equal(got, a.Keys) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("keys %v", a.Keys),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	case AssertMode:
		want, err := debug.ParseMode(a.Mode)
		if err != nil {
			return err
		}
		if view.Mode != want {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("mode %s", want),
				Actual:   view.Mode.String(),
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertState compares canonical forms so that int64 and float64 values
// decoded from different formats compare by value.
func assertState(a Assertion, state any) error {
	want, err := canonical.Marshal(a.Equals)
	if err != nil {
		return fmt.Errorf("state: encode expected value: %w", err)
	}
	got, err := canonical.Marshal(state)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", a.Store, err)
	}

	target := string(got)
	if a.Path != "" {
		res := gjson.GetBytes(got, a.Path)
		if !res.Exists() {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s at %s.%s", want, a.Store, a.Path),
				Actual:   "no value",
			}
		}
		target = res.Raw
	}

	if target != string(want) {
		where := a.Store
		if a.Path != "" {
			where += "." + a.Path
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %s", where, want),
			Actual:   target,
		}
	}
	return nil
}
