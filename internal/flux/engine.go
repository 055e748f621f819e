package flux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Reserved channel names. Stores react to the init channel by returning to
// their initial state; SetState changes carry the set-state channel so that
// recorders can tell restored state from reduced state.
const (
	InitStoresName = "@@INIT_STORES@@"
	SetStateName   = "@@SET_STATE@@"
)

// ReplayPolicy decides what happens to a dispatch that arrives while a
// history replay is scheduled but has not run yet.
type ReplayPolicy int

const (
	// ReplayQueue defers the dispatch until after the replay (default).
	ReplayQueue ReplayPolicy = iota
	// ReplayReject refuses the dispatch with ErrReplayInProgress.
	ReplayReject
)

// String returns the policy name.
func (p ReplayPolicy) String() string {
	switch p {
	case ReplayQueue:
		return "queue"
	case ReplayReject:
		return "reject"
	default:
		return fmt.Sprintf("ReplayPolicy(%d)", int(p))
	}
}

// Engine is the explicit context of one action/store universe.
//
// It owns the action bus, the change bus, the store registry, the logical
// clock and the deferred task queue.
//
// Thread-safety model:
//   - Post(): safe from any goroutine
//   - everything else: must be called from the goroutine that owns the
//     engine, which is also the goroutine running Drain or Run
//
// INVARIANTS:
//   - a dispatch does not return before every subscriber reaction completed
//   - join state for an action is dropped when its outermost dispatch returns
//   - store ids are unique within one engine
type Engine struct {
	logger  *slog.Logger
	debug   bool
	session string
	gen     SessionGenerator
	policy  ReplayPolicy

	clock        *Clock
	actions      bus[Envelope]
	changes      bus[StoreChange]
	queue        *taskQueue
	stores       []Settable
	storeIndex   map[string]Settable
	joins        map[*join]struct{}
	inflight     map[*Action]int
	storeCount   int
	channelCount int

	replayPending int // scheduled replays not yet started
	replayDepth   int // replays currently running

	initStores *Channel
	setState   *Channel
	closed     bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDebug logs every store change at debug level.
func WithDebug(on bool) EngineOption {
	return func(e *Engine) {
		e.debug = on
	}
}

// WithReplayPolicy sets how dispatches behave while a replay is pending.
func WithReplayPolicy(p ReplayPolicy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithSessionGenerator sets the generator for the engine session token.
// Default: UUIDv7Generator.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.gen = g
		}
	}
}

// New creates an engine. Call Close when done with it.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:     slog.Default(),
		gen:        UUIDv7Generator{},
		policy:     ReplayQueue,
		clock:      NewClock(),
		queue:      newTaskQueue(),
		storeIndex: make(map[string]Settable),
		joins:      make(map[*join]struct{}),
		inflight:   make(map[*Action]int),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.session = e.gen.Generate()
	e.initStores = e.NewChannel(InitStoresName)
	e.setState = e.NewChannel(SetStateName)

	return e
}

// Session returns the token identifying this engine lifetime.
func (e *Engine) Session() string {
	return e.session
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Clock returns the clock that stamps action seq numbers.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// InitStores returns the reserved channel that resets stores to their
// initial state.
func (e *Engine) InitStores() *Channel {
	return e.initStores
}

// SetStateChannel returns the reserved channel carried by SetState changes.
func (e *Engine) SetStateChannel() *Channel {
	return e.setState
}

// Dispatch broadcasts an action with the given tags on the action bus and
// returns once every synchronous reaction has completed.
//
// While a replay is pending, dispatches from outside the replay are queued
// behind it or refused, depending on the ReplayPolicy.
func (e *Engine) Dispatch(a *Action, tags ...Tag) error {
	if e.closed {
		return newConfigError(ErrCodeEngineClosed, "engine is closed")
	}
	if a == nil {
		return newConfigError(ErrCodeMissingAction, "dispatch requires an action")
	}

	if e.replayPending > 0 && e.replayDepth == 0 {
		if e.policy == ReplayReject {
			return fmt.Errorf("dispatch %s: %w", a.ID(), ErrReplayInProgress)
		}
		e.logger.Debug("dispatch queued behind replay",
			"action", a.ID(),
			"seq", a.Seq(),
		)
		if !e.Post(func() error {
			return e.Dispatch(a, tags...)
		}) {
			return newConfigError(ErrCodeEngineClosed, "engine closed while a replay was pending")
		}
		return nil
	}

	return e.dispatch(Envelope{Action: a, Tags: NewTags(tags...)})
}

// dispatch publishes without consulting the replay gate.
func (e *Engine) dispatch(env Envelope) error {
	a := env.Action
	e.inflight[a]++
	defer e.settle(a)

	return e.actions.publish(env)
}

// settle drops join state once the outermost dispatch of a has returned.
func (e *Engine) settle(a *Action) {
	e.inflight[a]--
	if e.inflight[a] > 0 {
		return
	}
	delete(e.inflight, a)
	for j := range e.joins {
		j.settle(a)
	}
}

func (e *Engine) inFlight(a *Action) bool {
	return e.inflight[a] > 0
}

func (e *Engine) publishChange(c StoreChange) error {
	if e.debug {
		e.logger.Debug("store change",
			"store", c.Store.ID(),
			"action", c.Action.ID(),
			"seq", c.Action.Seq(),
			"tags", c.Tags.String(),
		)
	}
	return e.changes.publish(c)
}

// ScheduleReplay redispatches the given envelopes on a later turn of the
// deferred queue. Until the replay task starts, Dispatch applies the
// ReplayPolicy; dispatches made from inside the replay pass through.
func (e *Engine) ScheduleReplay(envs []Envelope) {
	if e.closed {
		return
	}
	e.replayPending++
	e.logger.Debug("replay scheduled", "actions", len(envs), "session", e.session)

	e.Post(func() error {
		e.replayPending--
		e.replayDepth++
		defer func() { e.replayDepth-- }()

		for i, env := range envs {
			if err := e.dispatch(env); err != nil {
				return fmt.Errorf("replay step %d (%s): %w", i, env.Action.ID(), err)
			}
		}

		e.logger.Debug("replay finished", "actions", len(envs), "session", e.session)
		return nil
	})
}

// Replaying reports whether a replay is scheduled or running.
func (e *Engine) Replaying() bool {
	return e.replayPending > 0 || e.replayDepth > 0
}

// Post enqueues a task for Drain or Run.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been closed.
func (e *Engine) Post(t Task) bool {
	return e.queue.Enqueue(t)
}

// QueueLen returns the number of pending deferred tasks.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Drain runs deferred tasks on the calling goroutine until the queue is
// empty, including tasks posted while draining. Task errors are joined.
func (e *Engine) Drain() error {
	var errs []error
	for {
		t, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		if err := t(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run runs deferred tasks as they arrive.
// Blocks until context is cancelled or Close is called.
//
// ERROR HANDLING: a failing task is logged and the loop continues. Its
// dispatch chain already stopped at the first reducer error.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "session", e.session)

	for {
		t, ok := e.queue.TryDequeue()
		if ok {
			if err := t(); err != nil {
				e.logger.Error("deferred task failed",
					"error", err,
					"session", e.session,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open {
				e.logger.Info("engine stopping: closed")
				return nil
			}
		}
	}
}

// Close disposes every bus registration and drops pending tasks.
// Safe to call more than once.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.queue.Close()
	e.actions.cancelAll()
	e.changes.cancelAll()
	clear(e.joins)
	clear(e.inflight)
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed
}

// Stores returns every registered store in creation order.
func (e *Engine) Stores() []Settable {
	out := make([]Settable, len(e.stores))
	copy(out, e.stores)
	return out
}

// Store looks up a registered store by id.
func (e *Engine) Store(id string) (Settable, bool) {
	s, ok := e.storeIndex[id]
	return s, ok
}

func (e *Engine) register(s Settable) error {
	if e.closed {
		return newConfigError(ErrCodeEngineClosed, "engine is closed")
	}
	if _, dup := e.storeIndex[s.ID()]; dup {
		return &ConfigurationError{
			Code:    ErrCodeDuplicateStore,
			Message: "store id already registered",
			Store:   s.ID(),
		}
	}
	e.stores = append(e.stores, s)
	e.storeIndex[s.ID()] = s
	return nil
}

func (e *Engine) nextStoreID() string {
	e.storeCount++
	return fmt.Sprintf("store%d", e.storeCount)
}

// ChangeFilter selects store changes for an observer.
type ChangeFilter func(StoreChange) bool

// Observe registers a read-only observer on the change bus. A nil filter
// observes every change. Observers cannot fail a dispatch.
func (e *Engine) Observe(filter ChangeFilter, fn func(StoreChange)) *Subscription {
	s := e.changes.subscribe(func(c StoreChange) error {
		if filter == nil || filter(c) {
			fn(c)
		}
		return nil
	})
	return newSubscription(s.cancel)
}

// ObserveActions registers a read-only observer on the action bus.
func (e *Engine) ObserveActions(fn func(Envelope)) *Subscription {
	s := e.actions.subscribe(func(env Envelope) error {
		fn(env)
		return nil
	})
	return newSubscription(s.cancel)
}
