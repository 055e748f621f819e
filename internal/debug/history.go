// Package debug implements the time-travel history store.
//
// A History records every store change as a snapshot, can restore live
// stores to any recorded point, deactivate single snapshots and re-derive
// the whole history from the recorded action log.
//
// Recording:
//  1. Set-state changes and the history's own changes are ignored.
//  2. A stale future left by a jump is truncated first.
//  3. A change for the same action instance as the last snapshot is merged
//     into that snapshot.
//  4. Otherwise a new snapshot with a fresh key is appended.
//
// Replay:
// Live stores are reset to the first snapshot, history is cut to that
// snapshot, and the remaining actions are redispatched on a later turn of
// the engine's deferred queue. Inactive snapshots are redispatched with
// INTERNAL and REPLAY_INACTIVE so stores pass their state through and the
// new snapshot is recorded inactive again.
package debug

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/fluxr/internal/diff"
	"github.com/roach88/fluxr/internal/flux"
)

// ID is the id of the history store.
const ID = "debugStore"

// Command channel names.
const (
	CmdSweep             = "sweep"
	CmdCommit            = "commit"
	CmdReset             = "reset"
	CmdSetMode           = "setMode"
	CmdJumpToState       = "jumpToState"
	CmdToggleStateActive = "toggleStateActive"
)

// Commands holds the history's command channels.
type Commands struct {
	Sweep             *flux.Channel
	Commit            *flux.Channel
	Reset             *flux.Channel
	SetMode           *flux.Channel
	JumpToState       *flux.Channel
	ToggleStateActive *flux.Channel
}

// All returns every command channel.
func (c Commands) All() []*flux.Channel {
	return []*flux.Channel{c.Sweep, c.Commit, c.Reset, c.SetMode, c.JumpToState, c.ToggleStateActive}
}

// Option configures a History.
type Option func(*History)

// WithMode sets the initial recording mode. Default: ModeState.
func WithMode(m Mode) Option {
	return func(h *History) {
		h.mode = m
	}
}

// History is the time-travel debug store.
type History struct {
	engine *flux.Engine
	store  *flux.ControllableMetaStore[HistoryState]
	cmds   Commands
	keys   *flux.Clock
	logger *slog.Logger
	mode   Mode
}

// New creates a history store that records every change on the engine.
func New(e *flux.Engine, opts ...Option) (*History, error) {
	h := &History{
		engine: e,
		keys:   flux.NewClock(),
		logger: e.Logger().With("store", ID),
		mode:   ModeState,
	}
	for _, opt := range opts {
		opt(h)
	}
	if !h.mode.Valid() {
		return nil, fmt.Errorf("new history: invalid mode %d", int(h.mode))
	}

	h.store = flux.NewControllableMetaStore(e, HistoryState{Mode: h.mode}, ID)
	h.cmds = Commands{
		Sweep:             e.NewChannel(CmdSweep),
		Commit:            e.NewChannel(CmdCommit),
		Reset:             e.NewChannel(CmdReset),
		SetMode:           e.NewChannel(CmdSetMode),
		JumpToState:       e.NewChannel(CmdJumpToState),
		ToggleStateActive: e.NewChannel(CmdToggleStateActive),
	}

	if _, err := h.store.On(nil, h.record); err != nil {
		return nil, fmt.Errorf("new history: %w", err)
	}
	handlers := []struct {
		ch *flux.Channel
		fn flux.ActionHandlerFunc[HistoryState]
	}{
		{h.cmds.Sweep, h.sweep},
		{h.cmds.Commit, h.commit},
		{h.cmds.Reset, h.reset},
		{h.cmds.SetMode, h.setMode},
		{h.cmds.JumpToState, h.jumpToState},
		{h.cmds.ToggleStateActive, h.toggleStateActive},
	}
	for _, hd := range handlers {
		if _, err := h.store.OnAction([]*flux.Channel{hd.ch}, hd.fn); err != nil {
			return nil, fmt.Errorf("new history: %w", err)
		}
	}

	return h, nil
}

// ID returns the history store id.
func (h *History) ID() string {
	return ID
}

// Ref returns the identity the history publishes its changes under.
func (h *History) Ref() flux.StoreRef {
	return h.store.Ref()
}

// Commands returns the command channels.
func (h *History) Commands() Commands {
	return h.cmds
}

// View returns a copy of the current history.
func (h *History) View() View {
	return h.store.State().view()
}

// Mode returns the current recording mode.
func (h *History) Mode() Mode {
	return h.store.State().Mode
}

// Len returns the number of snapshots.
func (h *History) Len() int {
	return len(h.store.State().States)
}

// CalculateState returns the composed state at index i.
func (h *History) CalculateState(i int) (map[string]any, error) {
	st := h.store.State()
	if i < 0 || i >= len(st.States) {
		return nil, fmt.Errorf("calculate state: index %d out of range [0,%d)", i, len(st.States))
	}
	return calculateState(st.States, i, st.Mode), nil
}

// Dispose releases the history's subscriptions.
func (h *History) Dispose() {
	h.store.Dispose()
}

// Sweep invokes the sweep command.
func (h *History) Sweep() error { return h.cmds.Sweep.Invoke() }

// Commit invokes the commit command.
func (h *History) Commit() error { return h.cmds.Commit.Invoke() }

// Reset invokes the reset command.
func (h *History) Reset() error { return h.cmds.Reset.Invoke() }

// SetMode invokes the setMode command.
func (h *History) SetMode(m Mode) error { return h.cmds.SetMode.Invoke(m) }

// JumpToState invokes the jumpToState command for s.
func (h *History) JumpToState(s Snapshot) error { return h.cmds.JumpToState.Invoke(s) }

// ToggleStateActive invokes the toggleStateActive command for s.
func (h *History) ToggleStateActive(s Snapshot) error { return h.cmds.ToggleStateActive.Invoke(s) }

func (h *History) record(c flux.StoreChange, self *flux.MetaStore[HistoryState]) (HistoryState, bool, error) {
	if c.Action.Is(h.engine.SetStateChannel()) {
		return HistoryState{}, false, nil
	}

	st := self.State()
	states := st.States
	if st.CurrentState < len(states)-1 {
		states = slices.Clip(states[:st.CurrentState+1])
	}

	id := c.Store.ID()
	if n := len(states); n > 0 && states[n-1].Action == c.Action {
		last := states[n-1]
		last.State[id] = c.State
		if st.Mode == ModeDiff {
			last.Diff = h.diff(previousState(states, n-1), last.State)
		}
	} else {
		prev := previousState(states, n)
		next := make(map[string]any, len(prev)+1)
		if st.Mode != ModeState {
			maps.Copy(next, prev)
		}
		next[id] = c.State

		snap := &Snapshot{
			Key:      h.keys.Next(),
			Action:   c.Action,
			State:    next,
			Inactive: c.Tags.Has(flux.TagReplayInactive),
		}
		if st.Mode == ModeDiff {
			snap.Diff = h.diff(prev, next)
		}
		states = append(states, snap)
		st.StateCounter++
	}

	st.States = states
	st.CurrentState = len(states) - 1
	return st, true, nil
}

func previousState(states []*Snapshot, i int) map[string]any {
	if i <= 0 || i > len(states) {
		return nil
	}
	return states[i-1].State
}

func (h *History) diff(prev, next map[string]any) []diff.Entry {
	entries, err := diff.Compute(prev, next)
	if err != nil {
		h.logger.Warn("snapshot diff failed", "error", err)
		return nil
	}
	return entries
}

// calculateState composes the state at index i. In ModeDiff the stored
// state is already composed; otherwise active snapshots 0..i are folded.
func calculateState(states []*Snapshot, i int, mode Mode) map[string]any {
	if mode == ModeDiff {
		return maps.Clone(states[i].State)
	}
	out := make(map[string]any)
	for _, s := range states[:i+1] {
		if !s.Inactive {
			maps.Copy(out, s.State)
		}
	}
	return out
}

// applyState restores every registered store that has an entry in
// composed. Other stores are left untouched.
func (h *History) applyState(composed map[string]any) error {
	var errs []error
	for _, s := range h.engine.Stores() {
		v, ok := composed[s.ID()]
		if !ok {
			continue
		}
		if err := s.SetAnyState(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// applyBaseline is applyState that also returns stores without an entry
// to their initial state.
func (h *History) applyBaseline(composed map[string]any) error {
	var errs []error
	for _, s := range h.engine.Stores() {
		if v, ok := composed[s.ID()]; ok {
			errs = append(errs, s.SetAnyState(v))
			continue
		}
		if r, ok := s.(flux.Resetter); ok {
			errs = append(errs, r.ResetState())
		}
	}
	return errors.Join(errs...)
}

func (h *History) sweep(self *flux.MetaStore[HistoryState], _ *flux.Action) (HistoryState, bool, error) {
	st := self.State()
	st.States = slices.DeleteFunc(slices.Clone(st.States), func(s *Snapshot) bool {
		return s.Inactive
	})
	st.CurrentState = max(len(st.States)-1, 0)

	h.logger.Debug("history swept", "remaining", len(st.States))
	if len(st.States) == 0 {
		return st, true, nil
	}
	return st, true, h.applyState(calculateState(st.States, st.CurrentState, st.Mode))
}

func (h *History) commit(self *flux.MetaStore[HistoryState], _ *flux.Action) (HistoryState, bool, error) {
	st := self.State()
	if len(st.States) == 0 {
		return st, false, nil
	}

	composed := calculateState(st.States, st.CurrentState, st.Mode)
	a, err := h.engine.InitStores().New()
	if err != nil {
		return st, false, err
	}
	snap := &Snapshot{
		Key:    h.keys.Next(),
		Action: a,
		State:  composed,
	}
	if st.Mode == ModeDiff {
		snap.Diff = h.diff(nil, composed)
	}

	h.logger.Debug("history committed", "dropped", len(st.States), "key", snap.Key)
	st.States = []*Snapshot{snap}
	st.CurrentState = 0
	return st, true, nil
}

func (h *History) reset(self *flux.MetaStore[HistoryState], _ *flux.Action) (HistoryState, bool, error) {
	st := self.State()
	if len(st.States) == 0 {
		return st, false, nil
	}
	st.States = slices.Clip(st.States[:1])
	st.CurrentState = 0

	h.logger.Debug("history reset")
	return st, true, h.applyBaseline(calculateState(st.States, 0, st.Mode))
}

func (h *History) setMode(self *flux.MetaStore[HistoryState], a *flux.Action) (HistoryState, bool, error) {
	st := self.State()

	var mode Mode
	switch p := a.Payload().(type) {
	case Mode:
		mode = p
	case string:
		m, err := ParseMode(p)
		if err != nil {
			return st, false, err
		}
		mode = m
	default:
		return st, false, fmt.Errorf("set mode: unsupported payload %T", p)
	}
	if !mode.Valid() {
		return st, false, fmt.Errorf("set mode: invalid mode %d", int(mode))
	}

	h.logger.Debug("history mode changed", "from", st.Mode, "to", mode)
	st.Mode = mode
	if len(st.States) > 0 {
		first := st.States[0]
		first.Diff = nil
		if mode == ModeDiff {
			first.Diff = h.diff(nil, first.State)
		}
	}
	st, err := h.replayAll(st)
	return st, true, err
}

func (h *History) jumpToState(self *flux.MetaStore[HistoryState], a *flux.Action) (HistoryState, bool, error) {
	st := self.State()
	i, ok := indexOf(st.States, a.Payload())
	if !ok {
		return st, false, nil
	}
	st.CurrentState = i

	h.logger.Debug("history jump", "index", i, "key", st.States[i].Key)
	return st, true, h.applyState(calculateState(st.States, i, st.Mode))
}

func (h *History) toggleStateActive(self *flux.MetaStore[HistoryState], a *flux.Action) (HistoryState, bool, error) {
	st := self.State()
	i, ok := indexOf(st.States, a.Payload())
	if !ok {
		return st, false, nil
	}
	st.States[i].Inactive = !st.States[i].Inactive
	st.CurrentState = len(st.States) - 1

	h.logger.Debug("history toggle", "index", i, "inactive", st.States[i].Inactive)
	st, err := h.replayAll(st)
	return st, true, err
}

// replayAll restores the first snapshot, cuts history to it and schedules
// the redispatch of every later action.
func (h *History) replayAll(st HistoryState) (HistoryState, error) {
	if len(st.States) == 0 {
		return st, nil
	}

	first := st.States[0]
	rest := st.States[1:]
	err := h.applyBaseline(first.State)

	envs := make([]flux.Envelope, len(rest))
	for i, s := range rest {
		envs[i] = flux.Envelope{Action: s.Action}
		if s.Inactive {
			envs[i].Tags = flux.NewTags(flux.TagReplayInactive, flux.TagInternal)
		}
	}

	st.States = []*Snapshot{first}
	st.CurrentState = 0
	h.engine.ScheduleReplay(envs)
	return st, err
}

// indexOf finds the snapshot addressed by a command payload: a Snapshot,
// a *Snapshot or a key.
func indexOf(states []*Snapshot, payload any) (int, bool) {
	var key int64
	switch p := payload.(type) {
	case Snapshot:
		key = p.Key
	case *Snapshot:
		if p == nil {
			return 0, false
		}
		key = p.Key
	case int64:
		key = p
	case int:
		key = int64(p)
	default:
		return 0, false
	}
	i := slices.IndexFunc(states, func(s *Snapshot) bool { return s.Key == key })
	return i, i >= 0
}
