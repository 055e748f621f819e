package flux

import "sync"

// pipeline runs the steps of one channel.
//
// Invocations queue behind each other: the next invocation's first step
// starts only after the previous one resolved through the last step or
// was rejected. Continuations after resolve/reject go through the engine's
// deferred queue, so steps may complete on any goroutine.
type pipeline struct {
	ch      *Channel
	pending []*Action
	running bool
}

func (p *pipeline) push(a *Action) {
	p.pending = append(p.pending, a)
	if !p.running {
		p.next()
	}
}

func (p *pipeline) next() {
	if len(p.pending) == 0 {
		p.running = false
		return
	}
	p.running = true

	a := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]

	p.step(0, a, a)
}

func (p *pipeline) step(i int, origin, current *Action) {
	e := p.ch.engine

	var once sync.Once
	resolve := func(next *Action) {
		once.Do(func() {
			if next == nil {
				next = current
			}
			e.Post(func() error {
				return p.resolved(i, origin, next)
			})
		})
	}
	reject := func(reason any) {
		once.Do(func() {
			e.Post(func() error {
				p.rejected(origin, reason)
				return nil
			})
		})
	}

	p.ch.steps[i](current, resolve, reject)
}

func (p *pipeline) resolved(i int, origin, next *Action) error {
	if i+1 < len(p.ch.steps) {
		p.step(i+1, origin, next)
		return nil
	}

	err := p.ch.engine.Dispatch(next)
	p.next()
	return err
}

func (p *pipeline) rejected(origin *Action, reason any) {
	p.ch.engine.logger.Debug("pipeline rejected",
		"action", origin.ID(),
		"seq", origin.Seq(),
		"reason", reason,
	)
	if p.ch.catch != nil {
		p.ch.catch(reason, origin)
	}
	p.next()
}
