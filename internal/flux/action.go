package flux

import (
	"fmt"
	"slices"
	"strings"
)

// Tag is out-of-band bookkeeping attached to one dispatch of an action.
type Tag string

const (
	// TagInternal makes stores broadcast their current state without
	// running the reducer.
	TagInternal Tag = "INTERNAL"

	// TagReplayInactive marks a replayed action whose snapshot was inactive.
	TagReplayInactive Tag = "REPLAY_INACTIVE"
)

// Tags is an immutable set of tags. The zero value is empty.
type Tags struct {
	list []Tag // sorted, unique
}

// NewTags builds a tag set.
func NewTags(tags ...Tag) Tags {
	if len(tags) == 0 {
		return Tags{}
	}
	list := slices.Clone(tags)
	slices.Sort(list)
	return Tags{list: slices.Compact(list)}
}

// Has reports whether t is in the set.
func (t Tags) Has(tag Tag) bool {
	_, found := slices.BinarySearch(t.list, tag)
	return found
}

// With returns a new set with the given tags added.
func (t Tags) With(tags ...Tag) Tags {
	return NewTags(append(slices.Clone(t.list), tags...)...)
}

// Without returns a new set with the given tags removed.
func (t Tags) Without(tags ...Tag) Tags {
	out := make([]Tag, 0, len(t.list))
	for _, have := range t.list {
		if !slices.Contains(tags, have) {
			out = append(out, have)
		}
	}
	return Tags{list: out}
}

// Len returns the number of tags.
func (t Tags) Len() int {
	return len(t.list)
}

// List returns the tags in sorted order.
func (t Tags) List() []Tag {
	return slices.Clone(t.list)
}

// String joins the tags with commas.
func (t Tags) String() string {
	parts := make([]string, len(t.list))
	for i, tag := range t.list {
		parts[i] = string(tag)
	}
	return strings.Join(parts, ",")
}

// Envelope is one dispatch of an action: the instance plus the tags of this
// particular broadcast.
type Envelope struct {
	Action *Action
	Tags   Tags
}

// Action is one occurrence of a declared intent.
// Identity is pointer identity; the same instance may be dispatched again
// during replay.
type Action struct {
	channel *Channel
	payload any
	seq     int64
}

// Channel returns the channel that created the action.
func (a *Action) Channel() *Channel {
	return a.channel
}

// Payload returns the action payload, nil when none was given.
func (a *Action) Payload() any {
	return a.payload
}

// ID returns the name of the action's channel.
func (a *Action) ID() string {
	return a.channel.name
}

// Seq returns the engine clock value stamped when the action was created.
func (a *Action) Seq() int64 {
	return a.seq
}

// Is reports whether the action was created by ch.
func (a *Action) Is(ch *Channel) bool {
	return a.channel == ch
}

// Mapper builds an action payload from invocation arguments.
type Mapper func(args ...any) (any, error)

// Step is one stage of a channel pipeline. It must eventually call exactly
// one of resolve or reject; both are safe to call from any goroutine.
type Step func(a *Action, resolve func(*Action), reject func(reason any))

// CatchFunc receives the reason of a rejected pipeline and the action that
// entered it.
type CatchFunc func(reason any, a *Action)

// Channel is a declared action kind: identity, payload construction and an
// optional asynchronous pipeline.
type Channel struct {
	engine   *Engine
	uniqueID string
	name     string
	mapper   Mapper
	steps    []Step
	catch    CatchFunc
	pipe     *pipeline
}

// ChannelOption configures a channel at declaration.
type ChannelOption func(*Channel)

// WithMapper sets the payload mapper.
func WithMapper(m Mapper) ChannelOption {
	return func(c *Channel) {
		c.mapper = m
	}
}

// NewChannel declares an action channel on the engine. An empty name falls
// back to the generated unique id.
func (e *Engine) NewChannel(name string, opts ...ChannelOption) *Channel {
	e.channelCount++
	c := &Channel{
		engine:   e,
		uniqueID: fmt.Sprintf("action%d", e.channelCount),
	}
	c.name = name
	if c.name == "" {
		c.name = c.uniqueID
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pipe = &pipeline{ch: c}
	return c
}

// ID returns the human-readable channel name.
func (c *Channel) ID() string {
	return c.name
}

// UniqueID returns the engine-generated channel id.
func (c *Channel) UniqueID() string {
	return c.uniqueID
}

// Is reports whether a was created by this channel.
func (c *Channel) Is(a *Action) bool {
	return a != nil && a.channel == c
}

// New builds an action without dispatching it.
//
// Payload rules:
//   - no arguments: nil
//   - one argument, no mapper: the argument itself
//   - one argument with mapper: mapper(arg)
//   - several arguments: mapper(args...), and a mapper is required
func (c *Channel) New(args ...any) (*Action, error) {
	payload, err := c.payload(args)
	if err != nil {
		return nil, err
	}
	return &Action{
		channel: c,
		payload: payload,
		seq:     c.engine.clock.Next(),
	}, nil
}

func (c *Channel) payload(args []any) (any, error) {
	switch {
	case len(args) == 0:
		return nil, nil
	case len(args) == 1 && c.mapper == nil:
		return args[0], nil
	case c.mapper == nil:
		return nil, &ConfigurationError{
			Code:    ErrCodeMapperRequired,
			Message: "mapper required for multi-argument payload",
			Channel: c.name,
		}
	}

	p, err := c.mapper(args...)
	if err != nil {
		return nil, fmt.Errorf("map payload for %s: %w", c.name, err)
	}
	return p, nil
}

// Invoke builds a new action and dispatches it. When the channel has a
// pipeline, the action enters the pipeline instead and is dispatched after
// the last step resolves.
func (c *Channel) Invoke(args ...any) error {
	a, err := c.New(args...)
	if err != nil {
		return err
	}

	if len(c.steps) > 0 {
		c.pipe.push(a)
		return nil
	}

	return c.engine.Dispatch(a)
}

// Then appends a pipeline step.
func (c *Channel) Then(step Step) *Channel {
	if step != nil {
		c.steps = append(c.steps, step)
	}
	return c
}

// Catch sets the handler for rejected pipelines.
func (c *Channel) Catch(fn CatchFunc) *Channel {
	c.catch = fn
	return c
}
