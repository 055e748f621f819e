package flux

// bus is a synchronous in-process publish/subscribe channel.
//
// publish delivers to a snapshot of the subscribers taken at call time, so a
// subscriber added during delivery sees only later messages. A subscriber
// cancelled during delivery is skipped if it has not been reached yet.
type bus[M any] struct {
	subs []*busSub[M]
}

type busSub[M any] struct {
	bus    *bus[M]
	fn     func(M) error
	active bool
}

func (b *bus[M]) subscribe(fn func(M) error) *busSub[M] {
	s := &busSub[M]{bus: b, fn: fn, active: true}
	b.subs = append(b.subs, s)
	return s
}

// publish stops at the first subscriber error and returns it.
func (b *bus[M]) publish(msg M) error {
	if len(b.subs) == 0 {
		return nil
	}
	snapshot := make([]*busSub[M], len(b.subs))
	copy(snapshot, b.subs)

	for _, s := range snapshot {
		if !s.active {
			continue
		}
		if err := s.fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus[M]) len() int {
	return len(b.subs)
}

func (b *bus[M]) cancelAll() {
	for _, s := range b.subs {
		s.active = false
	}
	b.subs = nil
}

func (s *busSub[M]) cancel() {
	if !s.active {
		return
	}
	s.active = false
	subs := s.bus.subs
	for i, other := range subs {
		if other == s {
			s.bus.subs = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Subscription is a disposable registration on one of the engine buses.
// Dispose is idempotent.
type Subscription struct {
	cancels  []func()
	disposed bool
}

func newSubscription(cancels ...func()) *Subscription {
	return &Subscription{cancels: cancels}
}

// Dispose releases the underlying bus registrations. No handler runs for
// dispatches that start after Dispose returns.
func (s *Subscription) Dispose() {
	if s == nil || s.disposed {
		return
	}
	s.disposed = true
	for _, c := range s.cancels {
		c()
	}
	s.cancels = nil
}

// Disposed reports whether Dispose has been called.
func (s *Subscription) Disposed() bool {
	return s == nil || s.disposed
}

// JoinSubscriptions returns one subscription that disposes all of subs.
func JoinSubscriptions(subs ...*Subscription) *Subscription {
	cancels := make([]func(), 0, len(subs))
	for _, s := range subs {
		if s != nil {
			cancels = append(cancels, s.Dispose)
		}
	}
	return newSubscription(cancels...)
}
