package flux

// MetaHandlerFunc reacts to a store change. Returning false leaves the
// meta store untouched.
type MetaHandlerFunc[T any] func(c StoreChange, self *MetaStore[T]) (T, bool, error)

// ActionHandlerFunc reacts to an action on a ControllableMetaStore.
// Returning false leaves the store untouched.
type ActionHandlerFunc[T any] func(self *MetaStore[T], a *Action) (T, bool, error)

// MetaStore is a store whose reducers observe store changes instead of
// actions. Meta stores are not part of the engine registry, so history
// restore never writes them.
type MetaStore[T any] struct {
	Composable[T]

	engine *Engine
	self   StoreRef // identity used to publish and to exclude own changes
	subs   []*Subscription
}

// NewMetaStore creates a meta store. An empty id gets a generated id.
func NewMetaStore[T any](e *Engine, initial T, id string) *MetaStore[T] {
	m := newMetaStore(e, initial, id)
	m.self = m
	return m
}

func newMetaStore[T any](e *Engine, initial T, id string) *MetaStore[T] {
	if id == "" {
		id = e.nextStoreID()
	}
	return &MetaStore[T]{
		Composable: Composable[T]{id: id, state: initial},
		engine:     e,
	}
}

// Engine returns the owning engine.
func (m *MetaStore[T]) Engine() *Engine {
	return m.engine
}

// Ref returns the identity this store publishes its changes under.
func (m *MetaStore[T]) Ref() StoreRef {
	return m.self
}

// On observes changes of the given stores, or of every store when stores
// is empty. Changes published by this store itself are never delivered.
func (m *MetaStore[T]) On(stores []StoreRef, fn MetaHandlerFunc[T]) (*Subscription, error) {
	if fn == nil {
		return nil, &ConfigurationError{
			Code:    ErrCodeMissingHandler,
			Message: "subscription requires a handler",
			Store:   m.id,
		}
	}
	if m.engine.closed {
		return nil, newConfigError(ErrCodeEngineClosed, "engine is closed")
	}

	filter := make(map[StoreRef]struct{}, len(stores))
	for _, s := range stores {
		if s != nil {
			filter[s] = struct{}{}
		}
	}

	bs := m.engine.changes.subscribe(func(c StoreChange) error {
		if c.Store == m.self {
			return nil
		}
		if len(filter) > 0 {
			if _, ok := filter[c.Store]; !ok {
				return nil
			}
		}
		next, ok, err := fn(c, m)
		if err != nil {
			return &ReducerError{StoreID: m.id, Action: c.Action.ID(), Err: err}
		}
		if !ok {
			return nil
		}
		return m.commit(next, Envelope{Action: c.Action, Tags: c.Tags})
	})

	sub := newSubscription(bs.cancel)
	m.subs = append(m.subs, sub)
	return sub, nil
}

func (m *MetaStore[T]) commit(next T, env Envelope) error {
	m.state = next
	return m.engine.publishChange(StoreChange{
		Action: env.Action,
		Tags:   env.Tags,
		Store:  m.self,
		State:  next,
	})
}

// Dispose releases every subscription of the store.
func (m *MetaStore[T]) Dispose() {
	for _, s := range m.subs {
		s.Dispose()
	}
	m.subs = nil
}

// ControllableMetaStore is a MetaStore that can also be driven directly by
// command actions.
type ControllableMetaStore[T any] struct {
	MetaStore[T]
}

// NewControllableMetaStore creates a controllable meta store.
func NewControllableMetaStore[T any](e *Engine, initial T, id string) *ControllableMetaStore[T] {
	c := &ControllableMetaStore[T]{MetaStore: *newMetaStore(e, initial, id)}
	c.self = c
	return c
}

// OnAction subscribes fn to the given channels on the action bus. No
// channels subscribes to every non-reserved action.
func (c *ControllableMetaStore[T]) OnAction(channels []*Channel, fn ActionHandlerFunc[T]) (*Subscription, error) {
	m := &c.MetaStore
	if fn == nil {
		return nil, &ConfigurationError{
			Code:    ErrCodeMissingHandler,
			Message: "subscription requires a handler",
			Store:   m.id,
		}
	}
	if m.engine.closed {
		return nil, newConfigError(ErrCodeEngineClosed, "engine is closed")
	}

	if len(channels) == 0 {
		channels = []*Channel{nil}
	}
	cancels := make([]func(), 0, len(channels))
	for _, ch := range channels {
		bs := m.engine.actions.subscribe(func(env Envelope) error {
			if !matches(m.engine, ch, env.Action) {
				return nil
			}
			next, ok, err := fn(m, env.Action)
			if err != nil {
				return &ReducerError{StoreID: m.id, Action: env.Action.ID(), Err: err}
			}
			if !ok {
				return nil
			}
			return m.commit(next, env)
		})
		cancels = append(cancels, bs.cancel)
	}

	sub := newSubscription(cancels...)
	m.subs = append(m.subs, sub)
	return sub, nil
}
