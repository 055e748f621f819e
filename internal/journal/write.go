package journal

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/roach88/fluxr/internal/canonical"
	"github.com/roach88/fluxr/internal/flux"
)

// BeginSession registers a session token. Idempotent.
func (j *Journal) BeginSession(ctx context.Context, session string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, ordinal)
		VALUES (?, (SELECT COALESCE(MAX(ordinal), 0) + 1 FROM sessions))
		ON CONFLICT(id) DO NOTHING
	`, session)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// WriteAction appends one dispatched action.
func (j *Journal) WriteAction(ctx context.Context, session string, env flux.Envelope) error {
	payload, err := canonical.Marshal(env.Action.Payload())
	if err != nil {
		return fmt.Errorf("write action: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO actions (session, seq, channel, payload, tags)
		VALUES (?, ?, ?, ?, ?)
	`,
		session,
		env.Action.Seq(),
		env.Action.ID(),
		string(payload),
		env.Tags.String(),
	)
	if err != nil {
		return fmt.Errorf("write action: %w", err)
	}
	return nil
}

// WriteChange appends one store change.
func (j *Journal) WriteChange(ctx context.Context, session string, c flux.StoreChange) error {
	state, err := canonical.Marshal(c.State)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	hash, err := canonical.Fingerprint(c.State)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO changes (session, action_seq, channel, store_id, state, state_hash, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		session,
		c.Action.Seq(),
		c.Action.ID(),
		c.Store.ID(),
		string(state),
		hash,
		c.Tags.String(),
	)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	return nil
}

// Recorder writes an engine's activity to a journal until disposed.
type Recorder struct {
	subs     []*flux.Subscription
	failures atomic.Int64
}

// Attach starts recording e. Only changes of stores registered on the
// engine are recorded; meta stores such as the history are skipped.
func (j *Journal) Attach(ctx context.Context, e *flux.Engine) (*Recorder, error) {
	session := e.Session()
	if err := j.BeginSession(ctx, session); err != nil {
		return nil, err
	}

	r := &Recorder{}
	logger := j.logger.With("session", session)

	r.subs = append(r.subs, e.ObserveActions(func(env flux.Envelope) {
		if err := j.WriteAction(ctx, session, env); err != nil {
			r.failures.Add(1)
			logger.Warn("journal write failed", "action", env.Action.ID(), "error", err)
		}
	}))
	r.subs = append(r.subs, e.Observe(registered(e), func(c flux.StoreChange) {
		if err := j.WriteChange(ctx, session, c); err != nil {
			r.failures.Add(1)
			logger.Warn("journal write failed", "store", c.Store.ID(), "error", err)
		}
	}))

	return r, nil
}

// Failures returns the number of writes that failed.
func (r *Recorder) Failures() int64 {
	return r.failures.Load()
}

// Dispose stops recording.
func (r *Recorder) Dispose() {
	for _, s := range r.subs {
		s.Dispose()
	}
}

func registered(e *flux.Engine) flux.ChangeFilter {
	return func(c flux.StoreChange) bool {
		s, ok := e.Store(c.Store.ID())
		return ok && flux.StoreRef(s) == c.Store
	}
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
