package scenario

import (
	"fmt"
	"slices"

	"github.com/roach88/fluxr/internal/debug"
)

var (
	validOps       = []string{OpAdd, OpSet, OpPayload, OpAppend, OpMerge, OpCount, OpCopy}
	validDebug     = []string{DebugSweep, DebugCommit, DebugReset, DebugMode, DebugJump, DebugToggle}
	validAssertion = []string{AssertState, AssertHistoryLen, AssertInactive, AssertCurrent, AssertKeys, AssertMode}
)

// validate checks that required fields are present and that every name
// refers to a declared store or action.
func validate(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := s.historyMode(); err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	if len(s.Stores) == 0 {
		return fmt.Errorf("stores list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	actions := make(map[string]bool, len(s.Actions))
	for i, a := range s.Actions {
		if a.Name == "" {
			return fmt.Errorf("actions[%d]: name is required", i)
		}
		if actions[a.Name] {
			return fmt.Errorf("actions[%d]: duplicate action %q", i, a.Name)
		}
		actions[a.Name] = true
	}

	stores := make(map[string]bool, len(s.Stores))
	for i, st := range s.Stores {
		switch {
		case st.ID == "":
			return fmt.Errorf("stores[%d]: id is required", i)
		case st.ID == debug.ID:
			return fmt.Errorf("stores[%d]: id %q is reserved", i, st.ID)
		case stores[st.ID]:
			return fmt.Errorf("stores[%d]: duplicate store %q", i, st.ID)
		}
		stores[st.ID] = true
	}

	for i, st := range s.Stores {
		for j, r := range st.On {
			if err := validateReaction(r, st.ID, actions, stores); err != nil {
				return fmt.Errorf("stores[%d].on[%d]: %w", i, j, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, actions); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, stores); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateReaction(r Reaction, self string, actions, stores map[string]bool) error {
	if !slices.Contains(validOps, r.Op) {
		return fmt.Errorf("unknown op %q", r.Op)
	}
	for _, a := range r.Actions {
		if !actions[a] {
			return fmt.Errorf("unknown action %q", a)
		}
	}
	for _, id := range r.WaitFor {
		if id == self {
			return fmt.Errorf("store %q cannot wait for itself", id)
		}
		if !stores[id] {
			return fmt.Errorf("wait_for: unknown store %q", id)
		}
	}
	if r.Op == OpCount || r.Op == OpCopy {
		if r.Source == "" {
			return fmt.Errorf("source is required for %s", r.Op)
		}
		if !stores[r.Source] {
			return fmt.Errorf("source: unknown store %q", r.Source)
		}
	}
	return nil
}

func validateStep(step Step, actions map[string]bool) error {
	switch {
	case step.Dispatch != "" && step.Debug != "":
		return fmt.Errorf("dispatch and debug are mutually exclusive")
	case step.Dispatch != "":
		if !actions[step.Dispatch] {
			return fmt.Errorf("unknown action %q", step.Dispatch)
		}
		return nil
	case step.Debug == "":
		return fmt.Errorf("dispatch or debug is required")
	}

	if !slices.Contains(validDebug, step.Debug) {
		return fmt.Errorf("unknown debug command %q", step.Debug)
	}
	switch step.Debug {
	case DebugMode:
		if _, err := debug.ParseMode(step.Mode); err != nil {
			return err
		}
	case DebugJump, DebugToggle:
		if step.Index == nil {
			return fmt.Errorf("index is required for %s", step.Debug)
		}
	}
	return nil
}

func validateAssertion(a Assertion, stores map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !slices.Contains(validAssertion, a.Type) {
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	switch a.Type {
	case AssertState:
		if !stores[a.Store] {
			return fmt.Errorf("unknown store %q for state", a.Store)
		}
	case AssertHistoryLen:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count must be non-negative for history_len")
		}
	case AssertCurrent:
		if a.Index == nil {
			return fmt.Errorf("index is required for current")
		}
	case AssertMode:
		if _, err := debug.ParseMode(a.Mode); err != nil {
			return err
		}
	}
	return nil
}
