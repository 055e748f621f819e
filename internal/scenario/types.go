package scenario

import (
	"github.com/roach88/fluxr/internal/canonical"
	"github.com/roach88/fluxr/internal/debug"
)

// Result is the outcome of a scenario run.
type Result struct {
	Name    string `json:"name"`
	Session string `json:"session"`

	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Errors holds step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors"`

	// States maps store ids to their final state.
	States map[string]any `json:"states"`

	// History is the final history view.
	History debug.View `json:"history"`
}

// NewResult creates a new passing result.
func NewResult(name, session string) *Result {
	return &Result{
		Name:    name,
		Session: session,
		Pass:    true,
		Errors:  []string{},
		States:  make(map[string]any),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Canonical returns the deterministic form compared against golden files:
// the scenario name, the final states and the history.
func (r *Result) Canonical() ([]byte, error) {
	return canonical.Marshal(map[string]any{
		"name":    r.Name,
		"states":  r.States,
		"history": r.History,
	})
}
