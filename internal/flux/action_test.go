package flux

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_New_PayloadRules(t *testing.T) {
	e := newTestEngine(t)
	plain := e.NewChannel("plain")
	mapped := e.NewChannel("mapped", WithMapper(func(args ...any) (any, error) {
		return fmt.Sprint(args...), nil
	}))

	a, err := plain.New()
	require.NoError(t, err)
	assert.Nil(t, a.Payload(), "no arguments gives a nil payload")

	a, err = plain.New(map[string]int{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"x": 1}, a.Payload(), "single argument passes through")

	a, err = mapped.New(7)
	require.NoError(t, err)
	assert.Equal(t, "7", a.Payload())

	a, err = mapped.New("a", "b")
	require.NoError(t, err)
	assert.Equal(t, "ab", a.Payload())
}

func TestChannel_New_MapperRequired(t *testing.T) {
	e := newTestEngine(t)
	ch := e.NewChannel("pair")

	_, err := ch.New(1, 2)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, ErrCodeMapperRequired, ConfigCode(err))
	assert.Contains(t, err.Error(), "mapper required for multi-argument payload")
	assert.Contains(t, err.Error(), "action=pair")

	assert.Error(t, ch.Invoke(1, 2), "invoke surfaces the same error")
}

func TestChannel_New_MapperError(t *testing.T) {
	e := newTestEngine(t)
	boom := errors.New("boom")
	ch := e.NewChannel("bad", WithMapper(func(...any) (any, error) {
		return nil, boom
	}))

	_, err := ch.New(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsConfigurationError(err))
}

func TestChannel_Identity(t *testing.T) {
	e := newTestEngine(t)
	inc := e.NewChannel("inc")
	anon := e.NewChannel("")

	// The two reserved channels are declared first.
	assert.Equal(t, "action3", inc.UniqueID())
	assert.Equal(t, "inc", inc.ID())
	assert.Equal(t, "action4", anon.ID())

	a1, err := inc.New()
	require.NoError(t, err)
	a2, err := inc.New()
	require.NoError(t, err)

	assert.True(t, inc.Is(a1))
	assert.True(t, a1.Is(inc))
	assert.False(t, anon.Is(a1))
	assert.False(t, inc.Is(nil))
	assert.Equal(t, "inc", a1.ID())
	assert.NotSame(t, a1, a2, "each invocation is a new instance")
	assert.Less(t, a1.Seq(), a2.Seq())
}

func TestChannel_Invoke_Dispatches(t *testing.T) {
	e := newTestEngine(t)
	ping := e.NewChannel("ping")

	var seen []Envelope
	e.ObserveActions(func(env Envelope) {
		seen = append(seen, env)
	})

	require.NoError(t, ping.Invoke("hello"))
	require.Len(t, seen, 1)
	assert.True(t, ping.Is(seen[0].Action))
	assert.Equal(t, "hello", seen[0].Action.Payload())
	assert.Equal(t, 0, seen[0].Tags.Len())
}

func TestTags(t *testing.T) {
	tags := NewTags(TagReplayInactive, TagInternal, TagInternal)

	assert.Equal(t, 2, tags.Len())
	assert.True(t, tags.Has(TagInternal))
	assert.True(t, tags.Has(TagReplayInactive))
	assert.Equal(t, "INTERNAL,REPLAY_INACTIVE", tags.String())

	only := tags.Without(TagReplayInactive)
	assert.Equal(t, []Tag{TagInternal}, only.List())
	assert.True(t, tags.Has(TagReplayInactive), "Without does not mutate")

	var empty Tags
	assert.False(t, empty.Has(TagInternal))
	assert.Equal(t, "", empty.String())
	assert.True(t, empty.With(TagInternal).Has(TagInternal))
	assert.Equal(t, 0, empty.Len())
}
