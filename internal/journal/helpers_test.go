package journal

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fluxr/internal/flux"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func createTestEngine(t *testing.T, session string) *flux.Engine {
	t.Helper()
	e := flux.New(
		flux.WithLogger(discardLogger()),
		flux.WithSessionGenerator(flux.NewFixedGenerator(session)),
	)
	t.Cleanup(e.Close)
	return e
}

// counterFixture wires a counter store that adds the payload on inc.
func counterFixture(t *testing.T, e *flux.Engine) (*flux.Store[int], *flux.Channel) {
	t.Helper()
	counter, err := flux.NewStore(e, 0, "counter")
	require.NoError(t, err)
	inc := e.NewChannel("inc")
	err = counter.On([]*flux.Channel{inc}, flux.NewHandler(func(s *flux.Store[int], a *flux.Action, _ []flux.StoreRef) (int, error) {
		return s.State() + a.Payload().(int), nil
	}))
	require.NoError(t, err)
	return counter, inc
}
