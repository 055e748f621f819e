package debug

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fluxr/internal/flux"
)

type fixture struct {
	engine  *flux.Engine
	history *History
	inc     *flux.Channel
	push    *flux.Channel
	counter *flux.Store[int]
	list    *flux.Store[[]string]
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	e := flux.New(
		flux.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		flux.WithSessionGenerator(flux.NewFixedGenerator("debug-test")),
	)
	t.Cleanup(e.Close)

	h, err := New(e, opts...)
	require.NoError(t, err)

	f := &fixture{engine: e, history: h}
	f.inc = e.NewChannel("inc")
	f.push = e.NewChannel("push")

	f.counter, err = flux.NewStore(e, 0, "counter")
	require.NoError(t, err)
	require.NoError(t, f.counter.On([]*flux.Channel{f.inc}, flux.NewHandler(
		func(s *flux.Store[int], _ *flux.Action, _ []flux.StoreRef) (int, error) {
			return s.State() + 1, nil
		})))

	f.list, err = flux.NewStore(e, []string{}, "list")
	require.NoError(t, err)
	require.NoError(t, f.list.On([]*flux.Channel{f.push}, flux.NewHandler(
		func(s *flux.Store[[]string], a *flux.Action, _ []flux.StoreRef) ([]string, error) {
			next := append([]string{}, s.State()...)
			return append(next, a.Payload().(string)), nil
		})))
	return f
}

func (f *fixture) run(t *testing.T, fn func() error) {
	t.Helper()
	require.NoError(t, fn())
	require.NoError(t, f.engine.Drain())
}

func TestHistory_CounterToggleScenario(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		f.run(t, func() error { return f.inc.Invoke() })
	}
	require.Equal(t, 3, f.counter.State())

	v := f.history.View()
	require.Len(t, v.States, 3)
	assert.Equal(t, []int64{1, 2, 3}, v.Keys())
	assert.Equal(t, 2, v.CurrentState)
	assert.Equal(t, ModeState, v.Mode)

	f.run(t, func() error { return f.history.ToggleStateActive(v.States[1]) })

	assert.Equal(t, 2, f.counter.State(), "one increment skipped")
	v = f.history.View()
	require.Len(t, v.States, 3)
	assert.True(t, v.States[1].Inactive)
	assert.False(t, v.States[2].Inactive)
	assert.Equal(t, 2, v.CurrentState)

	// Toggling back restores the increment.
	f.run(t, func() error { return f.history.ToggleStateActive(v.States[1]) })
	assert.Equal(t, 3, f.counter.State())
	v = f.history.View()
	assert.False(t, v.States[1].Inactive)

	st, err := f.history.CalculateState(2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"counter": 3}, st)
}

func TestHistory_KeysNeverReused(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.inc.Invoke() })

	v := f.history.View()
	f.run(t, func() error { return f.history.ToggleStateActive(v.States[1]) })

	keys := f.history.View().Keys()
	assert.Equal(t, int64(1), keys[0], "the first snapshot survives a replay")
	assert.Greater(t, keys[1], int64(2), "replayed snapshots get fresh keys")
}

func TestHistory_MergesSameActionInstance(t *testing.T) {
	f := newFixture(t)
	both := f.engine.NewChannel("both")
	require.NoError(t, f.counter.On([]*flux.Channel{both}, flux.NewHandler(
		func(s *flux.Store[int], _ *flux.Action, _ []flux.StoreRef) (int, error) {
			return s.State() + 10, nil
		})))
	require.NoError(t, f.list.On([]*flux.Channel{both}, flux.NewHandler(
		func(s *flux.Store[[]string], _ *flux.Action, _ []flux.StoreRef) ([]string, error) {
			return append(append([]string{}, s.State()...), "both"), nil
		})))

	f.run(t, func() error { return both.Invoke() })

	v := f.history.View()
	require.Len(t, v.States, 1, "two stores reacting to one action make one snapshot")
	assert.Equal(t, map[string]any{"counter": 10, "list": []string{"both"}}, v.States[0].State)
	assert.Equal(t, 1, v.StateCounter)
}

func TestHistory_DistinctInstancesNeverMerge(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.inc.Invoke() })

	assert.Equal(t, 2, f.history.Len())
}

func TestHistory_IgnoresSetState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.counter.SetState(41))

	assert.Equal(t, 0, f.history.Len())
}

func TestHistory_JumpTruncatesFuture(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.run(t, func() error { return f.inc.Invoke() })
	}

	v := f.history.View()
	k := 1
	f.run(t, func() error { return f.history.JumpToState(v.States[k]) })
	assert.Equal(t, 2, f.counter.State())
	assert.Equal(t, k, f.history.View().CurrentState)
	assert.Equal(t, 4, f.history.Len(), "jump alone keeps the future")

	f.run(t, func() error { return f.inc.Invoke() })

	v = f.history.View()
	require.Len(t, v.States, k+2)
	assert.Equal(t, 3, f.counter.State())
	assert.Equal(t, k+1, v.CurrentState)
	assert.Equal(t, []int64{1, 2, 5}, v.Keys())
}

func TestHistory_JumpAppliesOnlyPresentStores(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.push.Invoke("a") })

	v := f.history.View()
	f.run(t, func() error { return f.history.JumpToState(v.States[0]) })

	assert.Equal(t, 1, f.counter.State())
	assert.Equal(t, []string{"a"}, f.list.State(), "stores absent from the composed state are untouched")
}

func TestHistory_UnknownSnapshotIsNoop(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.inc.Invoke() })

	before := f.history.View()
	ghost := Snapshot{Key: 999}
	f.run(t, func() error { return f.history.JumpToState(ghost) })
	f.run(t, func() error { return f.history.ToggleStateActive(ghost) })
	f.run(t, func() error { return f.history.cmds.JumpToState.Invoke("not a snapshot") })

	assert.Equal(t, before, f.history.View())
	assert.Equal(t, 2, f.counter.State())
	assert.False(t, f.engine.Replaying())
}

func TestHistory_ResetRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeState, ModeFullState, ModeDiff} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, WithMode(mode))
			f.run(t, func() error { return f.inc.Invoke() })
			f.run(t, func() error { return f.push.Invoke("a") })
			f.run(t, func() error { return f.inc.Invoke() })

			first, err := f.history.CalculateState(0)
			require.NoError(t, err)
			require.Equal(t, map[string]any{"counter": 1}, first)

			f.run(t, f.history.Reset)

			assert.Equal(t, 1, f.history.Len())
			got, err := f.history.CalculateState(0)
			require.NoError(t, err)
			assert.Equal(t, first, got)
			assert.Equal(t, 1, f.counter.State())
			assert.Equal(t, []string{}, f.list.State(), "reset rolls back stores recorded later")
		})
	}
}

func TestHistory_ModeShapes(t *testing.T) {
	tests := []struct {
		mode      Mode
		secondRaw map[string]any
		wantDiff  bool
	}{
		{ModeState, map[string]any{"list": []string{"a"}}, false},
		{ModeFullState, map[string]any{"counter": 1, "list": []string{"a"}}, false},
		{ModeDiff, map[string]any{"counter": 1, "list": []string{"a"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			f := newFixture(t, WithMode(tt.mode))
			f.run(t, func() error { return f.inc.Invoke() })
			f.run(t, func() error { return f.push.Invoke("a") })

			v := f.history.View()
			require.Len(t, v.States, 2)
			assert.Equal(t, tt.secondRaw, v.States[1].State)
			if tt.wantDiff {
				require.Len(t, v.States[1].Diff, 1)
				assert.Equal(t, "list", v.States[1].Diff[0].Path)
				assert.Equal(t, "add", v.States[1].Diff[0].Kind())
			} else {
				assert.Empty(t, v.States[1].Diff)
			}

			composed, err := f.history.CalculateState(1)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"counter": 1, "list": []string{"a"}}, composed)
		})
	}
}

func TestHistory_ModeSwitchRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.push.Invoke("a") })
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.push.Invoke("b") })

	before, err := f.history.CalculateState(f.history.Len() - 1)
	require.NoError(t, err)

	f.run(t, func() error { return f.history.SetMode(ModeFullState) })
	assert.Equal(t, ModeFullState, f.history.Mode())
	assert.Equal(t, 4, f.history.Len())
	assert.Equal(t, map[string]any{"counter": 2, "list": []string{"a", "b"}}, f.history.View().States[3].State)

	f.run(t, func() error { return f.history.SetMode(ModeState) })
	after, err := f.history.CalculateState(f.history.Len() - 1)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, 4, f.history.Len())
	assert.Equal(t, 2, f.counter.State())
	assert.Equal(t, []string{"a", "b"}, f.list.State())
}

func TestHistory_SetModeFromString(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })

	f.run(t, func() error { return f.history.cmds.SetMode.Invoke("diff") })
	assert.Equal(t, ModeDiff, f.history.Mode())
	require.Len(t, f.history.View().States[0].Diff, 1)

	err := f.history.cmds.SetMode.Invoke("sideways")
	require.Error(t, err)
	assert.True(t, flux.IsReducerError(err))
	assert.Equal(t, ModeDiff, f.history.Mode())
}

func TestHistory_DiffRecomputedOnMerge(t *testing.T) {
	f := newFixture(t, WithMode(ModeDiff))
	both := f.engine.NewChannel("both")
	require.NoError(t, f.counter.On([]*flux.Channel{both}, flux.NewHandler(
		func(s *flux.Store[int], _ *flux.Action, _ []flux.StoreRef) (int, error) {
			return s.State() + 1, nil
		})))
	require.NoError(t, f.list.On([]*flux.Channel{both}, flux.NewHandler(
		func(s *flux.Store[[]string], _ *flux.Action, _ []flux.StoreRef) ([]string, error) {
			return []string{"x"}, nil
		})))

	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return both.Invoke() })

	v := f.history.View()
	require.Len(t, v.States, 2)
	paths := []string{}
	for _, d := range v.States[1].Diff {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"counter", "list"}, paths)
}

func TestHistory_Sweep(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.run(t, func() error { return f.inc.Invoke() })
	}
	v := f.history.View()
	f.run(t, func() error { return f.history.ToggleStateActive(v.States[2]) })
	require.Equal(t, 2, f.counter.State())

	f.run(t, f.history.Sweep)

	v = f.history.View()
	require.Len(t, v.States, 2)
	assert.Equal(t, 1, v.CurrentState)
	for _, s := range v.States {
		assert.False(t, s.Inactive)
	}
	assert.Equal(t, 2, f.counter.State())
}

func TestHistory_Commit(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.push.Invoke("a") })
	f.run(t, func() error { return f.inc.Invoke() })

	f.run(t, f.history.Commit)

	v := f.history.View()
	require.Len(t, v.States, 1)
	assert.Equal(t, 0, v.CurrentState)
	assert.Equal(t, int64(4), v.States[0].Key, "commit takes a fresh key")
	assert.True(t, v.States[0].Action.Is(f.engine.InitStores()))
	assert.Equal(t, map[string]any{"counter": 2, "list": []string{"a"}}, v.States[0].State)
	assert.Equal(t, 2, f.counter.State(), "commit does not touch live stores")

	// The committed snapshot is the new baseline for replays.
	f.run(t, func() error { return f.inc.Invoke() })
	v = f.history.View()
	f.run(t, func() error { return f.history.ToggleStateActive(v.States[1]) })
	assert.Equal(t, 2, f.counter.State())
	assert.Equal(t, []string{"a"}, f.list.State())
}

func TestHistory_EmptyHistoryCommands(t *testing.T) {
	f := newFixture(t)

	f.run(t, f.history.Sweep)
	f.run(t, f.history.Commit)
	f.run(t, f.history.Reset)
	f.run(t, func() error { return f.history.SetMode(ModeDiff) })

	v := f.history.View()
	assert.Empty(t, v.States)
	assert.Equal(t, 0, v.CurrentState)
	assert.Equal(t, ModeDiff, v.Mode)

	_, err := f.history.CalculateState(0)
	assert.Error(t, err)
}

func TestHistory_ViewIsACopy(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })

	v := f.history.View()
	v.States[0].State["counter"] = 99
	v.States[0].Inactive = true

	again := f.history.View()
	assert.Equal(t, 1, again.States[0].State["counter"])
	assert.False(t, again.States[0].Inactive)
}

func TestHistory_ReplayQueuesExternalDispatch(t *testing.T) {
	f := newFixture(t)
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.inc.Invoke() })

	v := f.history.View()
	require.NoError(t, f.history.ToggleStateActive(v.States[1]))
	require.NoError(t, f.inc.Invoke(), "queued behind the pending replay")
	assert.Equal(t, 1, f.history.Len())
	require.NoError(t, f.engine.Drain())

	v = f.history.View()
	require.Len(t, v.States, 3)
	assert.True(t, v.States[1].Inactive)
	assert.Equal(t, 2, f.counter.State())
}

func TestNew_InvalidMode(t *testing.T) {
	e := flux.New(flux.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(e.Close)

	_, err := New(e, WithMode(Mode(7)))
	assert.Error(t, err)
}
