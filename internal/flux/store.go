package flux

import (
	"fmt"
	"slices"
)

// HandlerFunc computes a store's next state for an action. deps holds the
// wait-for stores in declaration order, nil without wait-for.
type HandlerFunc[T any] func(s *Store[T], a *Action, deps []StoreRef) (T, error)

// Handler wraps a HandlerFunc so it has an identity Off can match on.
type Handler[T any] struct {
	fn HandlerFunc[T]
}

// NewHandler returns a handler for fn.
func NewHandler[T any](fn HandlerFunc[T]) *Handler[T] {
	return &Handler[T]{fn: fn}
}

// Store is a named piece of state updated only by its reducers and SetState.
//
// INVARIANTS:
//   - state is written only in a reducer run or SetState
//   - every write broadcasts exactly one StoreChange
//   - a wait-for reducer runs at most once per action instance
type Store[T any] struct {
	Composable[T]

	// Debug logs this store's changes at debug level.
	Debug bool

	engine  *Engine
	initial T
	subs    []*storeSub[T]
	initSub *Subscription
}

type storeSub[T any] struct {
	channel *Channel
	handler *Handler[T]
	waitFor []StoreRef
	sub     *Subscription
}

// NewStore creates and registers a store. An empty id gets a generated
// "store<N>" id.
func NewStore[T any](e *Engine, initial T, id string) (*Store[T], error) {
	if id == "" {
		id = e.nextStoreID()
	}
	s := &Store[T]{
		Composable: Composable[T]{id: id, state: initial},
		engine:     e,
		initial:    initial,
	}
	if err := e.register(s); err != nil {
		return nil, err
	}

	reset := NewHandler(func(s *Store[T], _ *Action, _ []StoreRef) (T, error) {
		return s.initial, nil
	})
	bs := e.actions.subscribe(func(env Envelope) error {
		if !env.Action.Is(e.initStores) {
			return nil
		}
		return s.react(reset, env, nil)
	})
	s.initSub = newSubscription(bs.cancel)

	return s, nil
}

// Engine returns the owning engine.
func (s *Store[T]) Engine() *Engine {
	return s.engine
}

// Initial returns the state the store was created with.
func (s *Store[T]) Initial() T {
	return s.initial
}

// On subscribes h to the given channels, one subscription per channel.
// No channels subscribes to every non-reserved action.
func (s *Store[T]) On(channels []*Channel, h *Handler[T]) error {
	return s.OnAfter(channels, nil, h)
}

// OnAfter is On with a wait-for list: for each matching action instance
// the reducer runs only after every store in waitFor broadcast its change
// for that same instance.
func (s *Store[T]) OnAfter(channels []*Channel, waitFor []StoreRef, h *Handler[T]) error {
	if h == nil || h.fn == nil {
		return &ConfigurationError{
			Code:    ErrCodeMissingHandler,
			Message: "subscription requires a handler",
			Store:   s.id,
		}
	}
	for i, dep := range waitFor {
		if dep == nil {
			return &ConfigurationError{
				Code:    ErrCodeMissingDependency,
				Message: fmt.Sprintf("wait-for entry %d is nil", i),
				Store:   s.id,
			}
		}
	}
	if s.engine.closed {
		return newConfigError(ErrCodeEngineClosed, "engine is closed")
	}

	if len(channels) == 0 {
		channels = []*Channel{nil}
	}
	deps := slices.Clone(waitFor)
	for _, ch := range channels {
		s.subs = append(s.subs, s.subscribe(ch, deps, h))
	}
	return nil
}

func (s *Store[T]) subscribe(ch *Channel, deps []StoreRef, h *Handler[T]) *storeSub[T] {
	e := s.engine
	ss := &storeSub[T]{channel: ch, handler: h, waitFor: deps}

	if len(deps) == 0 {
		bs := e.actions.subscribe(func(env Envelope) error {
			if !matches(e, ch, env.Action) {
				return nil
			}
			return s.react(h, env, nil)
		})
		ss.sub = newSubscription(bs.cancel)
		return ss
	}

	j := newJoin(e, ch, deps, func(env Envelope, deps []StoreRef) error {
		return s.react(h, env, deps)
	})
	e.joins[j] = struct{}{}
	as := e.actions.subscribe(func(env Envelope) error {
		if !matches(e, ch, env.Action) {
			return nil
		}
		return j.onAction(env)
	})
	cs := e.changes.subscribe(j.onChange)
	ss.sub = newSubscription(as.cancel, cs.cancel, func() { delete(e.joins, j) })
	return ss
}

func (s *Store[T]) react(h *Handler[T], env Envelope, deps []StoreRef) error {
	if !env.Tags.Has(TagInternal) {
		next, err := h.fn(s, env.Action, deps)
		if err != nil {
			return &ReducerError{StoreID: s.id, Action: env.Action.ID(), Err: err}
		}
		s.state = next
	}
	return s.broadcast(env)
}

func (s *Store[T]) broadcast(env Envelope) error {
	if s.Debug {
		s.engine.logger.Debug("store state",
			"store", s.id,
			"action", env.Action.ID(),
			"state", s.state,
		)
	}
	return s.engine.publishChange(StoreChange{
		Action: env.Action,
		Tags:   env.Tags,
		Store:  s,
		State:  s.state,
	})
}

// Off disposes subscriptions on the given channels whose handler is h.
// No channels matches every channel; a nil h matches every handler.
// Returns the number of subscriptions disposed.
func (s *Store[T]) Off(channels []*Channel, h *Handler[T]) int {
	removed := 0
	kept := s.subs[:0]
	for _, ss := range s.subs {
		if (len(channels) == 0 || slices.Contains(channels, ss.channel)) &&
			(h == nil || ss.handler == h) {
			ss.sub.Dispose()
			removed++
			continue
		}
		kept = append(kept, ss)
	}
	clear(s.subs[len(kept):])
	s.subs = kept
	return removed
}

// Subscriptions returns the number of live subscriptions.
func (s *Store[T]) Subscriptions() int {
	return len(s.subs)
}

// SetState replaces the state without running reducers and broadcasts a
// change carrying a set-state action.
func (s *Store[T]) SetState(v T) error {
	s.state = v
	a, err := s.engine.setState.New()
	if err != nil {
		return err
	}
	return s.broadcast(Envelope{Action: a})
}

// ResetState is SetState with the initial state.
func (s *Store[T]) ResetState() error {
	return s.SetState(s.initial)
}

// SetAnyState is SetState for a type-erased value.
func (s *Store[T]) SetAnyState(v any) error {
	if v == nil {
		var zero T
		if any(zero) == nil {
			return s.SetState(zero)
		}
	}
	t, ok := v.(T)
	if !ok {
		return &ConfigurationError{
			Code:    ErrCodeStateType,
			Message: fmt.Sprintf("cannot restore %T into %T", v, s.state),
			Store:   s.id,
		}
	}
	return s.SetState(t)
}

// Dispose removes every subscription, including the init subscription.
// The store stays registered.
func (s *Store[T]) Dispose() {
	s.Off(nil, nil)
	s.initSub.Dispose()
}
