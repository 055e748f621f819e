package debug

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/roach88/fluxr/internal/diff"
	"github.com/roach88/fluxr/internal/flux"
)

// Snapshot is one recorded point in the history.
type Snapshot struct {
	// Key is unique within one history and never reused.
	Key int64

	// Action is the action instance that produced the snapshot.
	Action *flux.Action

	// State maps store ids to their state. Partial in ModeState.
	State map[string]any

	// Diff against the previous snapshot, ModeDiff only.
	Diff []diff.Entry

	// Inactive snapshots are skipped when states are recomputed.
	Inactive bool
}

func (s *Snapshot) clone() Snapshot {
	return Snapshot{
		Key:      s.Key,
		Action:   s.Action,
		State:    maps.Clone(s.State),
		Diff:     slices.Clone(s.Diff),
		Inactive: s.Inactive,
	}
}

type snapshotJSON struct {
	Key      int64          `json:"key"`
	Action   string         `json:"action"`
	Payload  any            `json:"payload,omitempty"`
	State    map[string]any `json:"state"`
	Diff     []diff.Entry   `json:"diff,omitempty"`
	Inactive bool           `json:"inactive"`
}

// MarshalJSON writes the action by name, with its payload when present.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	wire := snapshotJSON{
		Key:      s.Key,
		State:    s.State,
		Diff:     s.Diff,
		Inactive: s.Inactive,
	}
	if wire.State == nil {
		wire.State = map[string]any{}
	}
	if s.Action != nil {
		wire.Action = s.Action.ID()
		wire.Payload = s.Action.Payload()
	}
	return json.Marshal(wire)
}

// HistoryState is the state of the history store.
type HistoryState struct {
	States       []*Snapshot `json:"states"`
	CurrentState int         `json:"currentState"`
	Mode         Mode        `json:"mode"`
	StateCounter int         `json:"stateCounter"`
}

// View is a copy of the history for rendering.
type View struct {
	States       []Snapshot `json:"states"`
	CurrentState int        `json:"currentState"`
	Mode         Mode       `json:"mode"`
	StateCounter int        `json:"stateCounter"`
}

func (st HistoryState) view() View {
	v := View{
		States:       make([]Snapshot, len(st.States)),
		CurrentState: st.CurrentState,
		Mode:         st.Mode,
		StateCounter: st.StateCounter,
	}
	for i, s := range st.States {
		v.States[i] = s.clone()
	}
	return v
}

// Keys returns the snapshot keys in order.
func (v View) Keys() []int64 {
	keys := make([]int64, len(v.States))
	for i, s := range v.States {
		keys[i] = s.Key
	}
	return keys
}
