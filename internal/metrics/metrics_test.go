package metrics

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fluxr/internal/flux"
)

func newEngine(t *testing.T) *flux.Engine {
	t.Helper()
	e := flux.New(
		flux.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		flux.WithSessionGenerator(flux.NewFixedGenerator("metrics-test")),
	)
	t.Cleanup(e.Close)
	return e
}

func TestCollector_CountsDispatchesAndChanges(t *testing.T) {
	e := newEngine(t)
	inc := e.NewChannel("inc")
	counter, err := flux.NewStore(e, 0, "counter")
	require.NoError(t, err)
	require.NoError(t, counter.On([]*flux.Channel{inc}, flux.NewHandler(
		func(s *flux.Store[int], _ *flux.Action, _ []flux.StoreRef) (int, error) {
			return s.State() + 1, nil
		})))

	c := NewCollector("")
	sub := c.Attach(e)

	require.NoError(t, inc.Invoke())
	a, err := inc.New()
	require.NoError(t, err)
	require.NoError(t, e.Dispatch(a, flux.TagInternal))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatches.WithLabelValues("inc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.internalDispatches.WithLabelValues("inc")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.changes.WithLabelValues("counter")))
	assert.Equal(t, 1, counter.State())

	sub.Dispose()
	require.NoError(t, inc.Invoke())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatches.WithLabelValues("inc")))
}

func TestCollector_WriteText(t *testing.T) {
	e := newEngine(t)
	inc := e.NewChannel("inc")

	c := NewCollector("test")
	defer c.Attach(e).Dispose()
	require.NoError(t, inc.Invoke())

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	assert.Contains(t, buf.String(), `test_engine_dispatch_total{channel="inc"} 1`)
	assert.Contains(t, buf.String(), "# TYPE test_engine_queue_depth gauge")
}

func TestCollector_Registry(t *testing.T) {
	c := NewCollector("x")
	n, err := testutil.GatherAndCount(c.Registry())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the gauge is reported before any activity")
}
