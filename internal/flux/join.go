package flux

import "slices"

// join is the barrier of one wait-for subscription.
//
// Entries are keyed by action instance and created by whichever side
// arrives first: the action on the action bus, or a dependency's change
// on the change bus. The entry fires once, when the action was seen and
// every dependency has posted a change for it.
type join struct {
	engine  *Engine
	channel *Channel // nil matches every non-reserved action
	deps    []StoreRef
	entries map[*Action]*joinEntry
	fire    func(env Envelope, deps []StoreRef) error
}

type joinEntry struct {
	env     Envelope
	seen    bool
	fired   bool
	arrived []bool
}

func newJoin(e *Engine, ch *Channel, deps []StoreRef, fire func(Envelope, []StoreRef) error) *join {
	return &join{
		engine:  e,
		channel: ch,
		deps:    deps,
		entries: make(map[*Action]*joinEntry),
		fire:    fire,
	}
}

func (j *join) entry(a *Action) *joinEntry {
	en, ok := j.entries[a]
	if !ok {
		en = &joinEntry{arrived: make([]bool, len(j.deps))}
		j.entries[a] = en
	}
	return en
}

func (j *join) onAction(env Envelope) error {
	en := j.entry(env.Action)
	if en.seen {
		return nil
	}
	en.seen = true
	en.env = env
	return j.try(en)
}

func (j *join) onChange(c StoreChange) error {
	if c.Action == nil || !matches(j.engine, j.channel, c.Action) || !j.engine.inFlight(c.Action) {
		return nil
	}

	if !slices.Contains(j.deps, c.Store) {
		return nil
	}

	en := j.entry(c.Action)
	for i, dep := range j.deps {
		if dep == c.Store {
			en.arrived[i] = true
		}
	}
	return j.try(en)
}

func (j *join) try(en *joinEntry) error {
	if en.fired || !en.seen {
		return nil
	}
	for _, ok := range en.arrived {
		if !ok {
			return nil
		}
	}
	en.fired = true
	return j.fire(en.env, j.deps)
}

func (j *join) settle(a *Action) {
	delete(j.entries, a)
}

// pending returns the number of unsettled entries.
func (j *join) pending() int {
	return len(j.entries)
}

// matches reports whether a subscription on ch observes a. A nil channel
// observes everything except the reserved channels.
func matches(e *Engine, ch *Channel, a *Action) bool {
	if ch == nil {
		return !a.Is(e.initStores) && !a.Is(e.setState)
	}
	return a.Is(ch)
}
