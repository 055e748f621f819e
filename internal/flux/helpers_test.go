package flux

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSessionGenerator(NewFixedGenerator("test-session")),
	}
	e := New(append(base, opts...)...)
	t.Cleanup(e.Close)
	return e
}

func newIntStore(t *testing.T, e *Engine, initial int, id string) *Store[int] {
	t.Helper()
	s, err := NewStore(e, initial, id)
	require.NoError(t, err)
	return s
}

func add(n int) *Handler[int] {
	return NewHandler(func(s *Store[int], _ *Action, _ []StoreRef) (int, error) {
		return s.State() + n, nil
	})
}

// changeLog records every change broadcast on the engine.
type changeLog struct {
	changes []StoreChange
}

func recordChanges(e *Engine) *changeLog {
	l := &changeLog{}
	e.Observe(nil, func(c StoreChange) {
		l.changes = append(l.changes, c)
	})
	return l
}

func (l *changeLog) stores() []string {
	ids := make([]string, len(l.changes))
	for i, c := range l.changes {
		ids[i] = c.Store.ID()
	}
	return ids
}
