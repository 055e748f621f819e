package flux

// StoreRef is the type-erased view of a store used by joins, registries
// and change events.
type StoreRef interface {
	ID() string
	AnyState() any
}

// Settable is a registered store whose state can be restored from a
// type-erased value.
type Settable interface {
	StoreRef
	SetAnyState(v any) error
}

// Resetter is implemented by stores that can return to their initial state
// without running reducers.
type Resetter interface {
	ResetState() error
}

// DeepStater is implemented by stores that can compose their subtree.
type DeepStater interface {
	DeepState() map[string]any
}

// StoreChange is broadcast on the change bus whenever a store commits a
// state, including pass-through broadcasts of INTERNAL dispatches.
type StoreChange struct {
	Action *Action
	Tags   Tags
	Store  StoreRef
	State  any
}

// Composable holds a state and non-owning references to child stores.
type Composable[T any] struct {
	id       string
	state    T
	children []child
}

type child struct {
	id  string
	ref StoreRef
}

// ID returns the store id.
func (c *Composable[T]) ID() string {
	return c.id
}

// State returns the current state.
func (c *Composable[T]) State() T {
	return c.state
}

// AnyState returns the current state as any.
func (c *Composable[T]) AnyState() any {
	return c.state
}

// AddChild attaches a child under id, or under the child's own id when id
// is empty. Re-adding an id replaces the previous child.
func (c *Composable[T]) AddChild(ref StoreRef, id string) {
	if ref == nil {
		return
	}
	if id == "" {
		id = ref.ID()
	}
	for i := range c.children {
		if c.children[i].id == id {
			c.children[i].ref = ref
			return
		}
	}
	c.children = append(c.children, child{id: id, ref: ref})
}

// Children returns the child ids in insertion order.
func (c *Composable[T]) Children() []string {
	ids := make([]string, len(c.children))
	for i, ch := range c.children {
		ids[i] = ch.id
	}
	return ids
}

// DeepState composes {"state": state, <childId>: child.DeepState()} over
// the whole subtree. Children that cannot compose contribute their state.
func (c *Composable[T]) DeepState() map[string]any {
	out := make(map[string]any, len(c.children)+1)
	out["state"] = c.state
	for _, ch := range c.children {
		if d, ok := ch.ref.(DeepStater); ok {
			out[ch.id] = d.DeepState()
			continue
		}
		out[ch.id] = ch.ref.AnyState()
	}
	return out
}

// StateWithChildren composes one level: {"state": state, <childId>: child state}.
func (c *Composable[T]) StateWithChildren() map[string]any {
	out := make(map[string]any, len(c.children)+1)
	out["state"] = c.state
	for _, ch := range c.children {
		out[ch.id] = ch.ref.AnyState()
	}
	return out
}
