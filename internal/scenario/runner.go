package scenario

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/fluxr/internal/debug"
	"github.com/roach88/fluxr/internal/flux"
)

// Hook is called with the fresh engine before the first step. The returned
// cleanup runs after the last assertion.
type Hook func(e *flux.Engine) (cleanup func(), err error)

// RunOption configures a run.
type RunOption func(*runConfig)

type runConfig struct {
	logger *slog.Logger
	mode   *debug.Mode
	hooks  []Hook
}

// WithLogger sets the engine logger. Runs are silent by default.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMode overrides the scenario's initial history mode.
func WithMode(m debug.Mode) RunOption {
	return func(c *runConfig) {
		c.mode = &m
	}
}

// WithHook registers a hook, for example to attach a journal.
func WithHook(h Hook) RunOption {
	return func(c *runConfig) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

type runner struct {
	sc       *Scenario
	engine   *flux.Engine
	history  *debug.History
	stores   map[string]*flux.Store[any]
	channels map[string]*flux.Channel
	result   *Result
}

// Run executes a scenario on a fresh engine and returns the result.
//
// Execution flow:
//  1. Create the engine with the scenario's session token
//  2. Create the history and the declared channels and stores
//  3. Wire store reactions
//  4. Run each step, then drain the deferred queue
//  5. Evaluate assertions
//
// An error is returned only when the run could not be set up; step and
// assertion failures are reported in the Result.
func Run(sc *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	mode, err := sc.historyMode()
	if err != nil {
		return nil, err
	}
	if cfg.mode != nil {
		mode = *cfg.mode
	}

	e := flux.New(
		flux.WithLogger(cfg.logger),
		flux.WithSessionGenerator(flux.NewFixedGenerator(sc.session())),
	)
	defer e.Close()

	h, err := debug.New(e, debug.WithMode(mode))
	if err != nil {
		return nil, err
	}
	defer h.Dispose()

	r := &runner{
		sc:       sc,
		engine:   e,
		history:  h,
		stores:   make(map[string]*flux.Store[any], len(sc.Stores)),
		channels: make(map[string]*flux.Channel, len(sc.Actions)),
		result:   NewResult(sc.Name, e.Session()),
	}
	if err := r.build(); err != nil {
		return nil, err
	}

	for _, hook := range cfg.hooks {
		cleanup, err := hook(e)
		if err != nil {
			return nil, fmt.Errorf("run hook: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
	}

	for i, step := range sc.Steps {
		r.step(i, step)
	}

	for _, st := range sc.Stores {
		r.result.States[st.ID] = r.stores[st.ID].State()
	}
	r.result.History = h.View()

	for i, a := range sc.Assertions {
		if err := r.assert(a); err != nil {
			r.result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return r.result, nil
}

func (r *runner) build() error {
	for _, a := range r.sc.Actions {
		r.channels[a.Name] = r.engine.NewChannel(a.Name, flux.WithMapper(listPayload))
	}

	for _, def := range r.sc.Stores {
		s, err := flux.NewStore[any](r.engine, def.Initial, def.ID)
		if err != nil {
			return fmt.Errorf("store %s: %w", def.ID, err)
		}
		r.stores[def.ID] = s
	}

	for _, def := range r.sc.Stores {
		s := r.stores[def.ID]
		for j, re := range def.On {
			channels := make([]*flux.Channel, len(re.Actions))
			for k, name := range re.Actions {
				channels[k] = r.channels[name]
			}
			deps := make([]flux.StoreRef, len(re.WaitFor))
			for k, id := range re.WaitFor {
				deps[k] = r.stores[id]
			}

			if err := s.OnAfter(channels, deps, flux.NewHandler(r.reducer(re))); err != nil {
				return fmt.Errorf("store %s on[%d]: %w", def.ID, j, err)
			}
		}
	}
	return nil
}

// listPayload maps one argument to itself and several to a list.
func listPayload(args ...any) (any, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return append([]any(nil), args...), nil
}

func (r *runner) step(i int, step Step) {
	err := r.exec(step)
	if drainErr := r.engine.Drain(); err == nil {
		err = drainErr
	}

	switch {
	case step.ExpectError && err == nil:
		r.result.AddError(fmt.Sprintf("steps[%d]: expected an error, got none", i))
	case !step.ExpectError && err != nil:
		r.result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
	}
}

func (r *runner) exec(step Step) error {
	if step.Dispatch != "" {
		a, err := r.channels[step.Dispatch].New(step.Args...)
		if err != nil {
			return err
		}
		tags := make([]flux.Tag, len(step.Tags))
		for i, t := range step.Tags {
			tags[i] = flux.Tag(t)
		}
		return r.engine.Dispatch(a, tags...)
	}

	switch step.Debug {
	case DebugSweep:
		return r.history.Sweep()
	case DebugCommit:
		return r.history.Commit()
	case DebugReset:
		return r.history.Reset()
	case DebugMode:
		m, err := debug.ParseMode(step.Mode)
		if err != nil {
			return err
		}
		return r.history.SetMode(m)
	case DebugJump, DebugToggle:
		snap, err := r.snapshot(*step.Index)
		if err != nil {
			return err
		}
		if step.Debug == DebugJump {
			return r.history.JumpToState(snap)
		}
		return r.history.ToggleStateActive(snap)
	default:
		return fmt.Errorf("unknown debug command %q", step.Debug)
	}
}

func (r *runner) snapshot(i int) (debug.Snapshot, error) {
	v := r.history.View()
	if i < 0 || i >= len(v.States) {
		return debug.Snapshot{}, fmt.Errorf("history index %d out of range [0, %d)", i, len(v.States))
	}
	return v.States[i], nil
}
