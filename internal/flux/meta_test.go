package flux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaStore_ObservesAllStoresExceptItself(t *testing.T) {
	e := newTestEngine(t)
	inc := e.NewChannel("inc")
	a := newIntStore(t, e, 0, "a")
	b := newIntStore(t, e, 0, "b")
	require.NoError(t, a.On([]*Channel{inc}, add(1)))
	require.NoError(t, b.On([]*Channel{inc}, add(2)))

	m := NewMetaStore(e, []string{}, "seen")
	_, err := m.On(nil, func(c StoreChange, self *MetaStore[[]string]) ([]string, bool, error) {
		return append(self.State(), c.Store.ID()), true, nil
	})
	require.NoError(t, err)

	require.NoError(t, inc.Invoke())
	assert.Equal(t, []string{"a", "b"}, m.State(), "own changes are never delivered")

	_, registered := e.Store("seen")
	assert.False(t, registered, "meta stores are not registered")
}

func TestMetaStore_StoreFilterAndNoMutation(t *testing.T) {
	e := newTestEngine(t)
	inc := e.NewChannel("inc")
	a := newIntStore(t, e, 0, "a")
	b := newIntStore(t, e, 0, "b")
	require.NoError(t, a.On([]*Channel{inc}, add(1)))
	require.NoError(t, b.On([]*Channel{inc}, add(1)))

	m := NewMetaStore(e, 0, "evens")
	_, err := m.On([]StoreRef{b}, func(c StoreChange, self *MetaStore[int]) (int, bool, error) {
		v := c.State.(int)
		if v%2 != 0 {
			return 0, false, nil
		}
		return v, true, nil
	})
	require.NoError(t, err)
	log := recordChanges(e)

	require.NoError(t, inc.Invoke())
	assert.Equal(t, 0, m.State())
	assert.Equal(t, []string{"a", "b"}, log.stores())

	require.NoError(t, inc.Invoke())
	assert.Equal(t, 2, m.State())
	// The meta change is published while b's change is still being delivered.
	assert.Equal(t, []string{"a", "b", "a", "evens", "b"}, log.stores())
	assert.True(t, inc.Is(log.changes[3].Action), "meta change carries the incoming action")
}

func TestMetaStore_ChainedMetaStores(t *testing.T) {
	e := newTestEngine(t)
	inc := e.NewChannel("inc")
	a := newIntStore(t, e, 0, "a")
	require.NoError(t, a.On([]*Channel{inc}, add(1)))

	first := NewMetaStore(e, 0, "first")
	_, err := first.On([]StoreRef{a}, func(c StoreChange, _ *MetaStore[int]) (int, bool, error) {
		return c.State.(int) * 10, true, nil
	})
	require.NoError(t, err)

	second := NewMetaStore(e, 0, "second")
	_, err = second.On([]StoreRef{first.Ref()}, func(c StoreChange, _ *MetaStore[int]) (int, bool, error) {
		return c.State.(int) + 1, true, nil
	})
	require.NoError(t, err)

	require.NoError(t, inc.Invoke())
	assert.Equal(t, 10, first.State())
	assert.Equal(t, 11, second.State())
}

func TestMetaStore_HandlerError(t *testing.T) {
	e := newTestEngine(t)
	inc := e.NewChannel("inc")
	a := newIntStore(t, e, 0, "a")
	require.NoError(t, a.On([]*Channel{inc}, add(1)))

	boom := errors.New("boom")
	m := NewMetaStore(e, 0, "m")
	_, err := m.On(nil, func(StoreChange, *MetaStore[int]) (int, bool, error) {
		return 0, false, boom
	})
	require.NoError(t, err)

	err = inc.Invoke()
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsReducerError(err))

	_, err = m.On(nil, nil)
	assert.Equal(t, ErrCodeMissingHandler, ConfigCode(err))
}

func TestMetaStore_Dispose(t *testing.T) {
	e := newTestEngine(t)
	inc := e.NewChannel("inc")
	a := newIntStore(t, e, 0, "a")
	require.NoError(t, a.On([]*Channel{inc}, add(1)))

	m := NewMetaStore(e, 0, "m")
	sub, err := m.On(nil, func(c StoreChange, self *MetaStore[int]) (int, bool, error) {
		return self.State() + 1, true, nil
	})
	require.NoError(t, err)

	require.NoError(t, inc.Invoke())
	sub.Dispose()
	sub.Dispose()
	assert.True(t, sub.Disposed())
	require.NoError(t, inc.Invoke())

	assert.Equal(t, 1, m.State())
}

func TestControllableMetaStore_OnAction(t *testing.T) {
	e := newTestEngine(t)
	bump := e.NewChannel("bump")
	noop := e.NewChannel("noop")
	a := newIntStore(t, e, 0, "a")
	require.NoError(t, a.On([]*Channel{bump}, add(1)))

	c := NewControllableMetaStore(e, 0, "ctl")
	_, err := c.OnAction([]*Channel{bump, noop}, func(self *MetaStore[int], act *Action) (int, bool, error) {
		if act.Is(noop) {
			return 0, false, nil
		}
		return self.State() + 100, true, nil
	})
	require.NoError(t, err)
	_, err = c.On(nil, func(ch StoreChange, self *MetaStore[int]) (int, bool, error) {
		return self.State() + 1, true, nil
	})
	require.NoError(t, err)
	log := recordChanges(e)

	act, err := bump.New()
	require.NoError(t, err)
	require.NoError(t, e.Dispatch(act, TagReplayInactive))
	require.NoError(t, noop.Invoke())

	assert.Equal(t, 101, c.State(), "own changes are excluded from On")
	require.Len(t, log.changes, 3)
	assert.Equal(t, []string{"ctl", "a", "ctl"}, log.stores())
	assert.Same(t, c, log.changes[0].Store, "changes publish under the outer store")
	assert.True(t, log.changes[0].Tags.Has(TagReplayInactive), "tags are forwarded")
}
