package scenario

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/fluxr/internal/flux"
)

// reducer builds the handler function for one reaction.
func (r *runner) reducer(re Reaction) flux.HandlerFunc[any] {
	return func(s *flux.Store[any], a *flux.Action, _ []flux.StoreRef) (any, error) {
		switch re.Op {
		case OpAdd:
			return addNumbers(s.State(), re.Value)
		case OpSet:
			return re.Value, nil
		case OpPayload:
			return a.Payload(), nil
		case OpAppend:
			list, ok := s.State().([]any)
			if !ok && s.State() != nil {
				return nil, fmt.Errorf("append: state is %T, want list", s.State())
			}
			item := a.Payload()
			if re.Value != nil {
				item = re.Value
			}
			return append(slices.Clip(list), item), nil
		case OpMerge:
			obj, ok := s.State().(map[string]any)
			if !ok && s.State() != nil {
				return nil, fmt.Errorf("merge: state is %T, want object", s.State())
			}
			patch, ok := a.Payload().(map[string]any)
			if !ok {
				return nil, fmt.Errorf("merge: payload is %T, want object", a.Payload())
			}
			next := maps.Clone(obj)
			if next == nil {
				next = make(map[string]any, len(patch))
			}
			maps.Copy(next, patch)
			return next, nil
		case OpCount:
			return countOf(r.sourceState(re.Source))
		case OpCopy:
			return normalize(r.sourceState(re.Source))
		default:
			return nil, fmt.Errorf("unknown op %q", re.Op)
		}
	}
}

func (r *runner) sourceState(id string) any {
	if st, ok := r.stores[id]; ok {
		return st.State()
	}
	return nil
}

func addNumbers(a, b any) (any, error) {
	if b == nil {
		b = int64(1)
	}
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		return ai + bi, nil
	}

	af, ok := toFloat(a)
	if !ok {
		return nil, fmt.Errorf("add: state is %T, want number", a)
	}
	bf, ok := toFloat(b)
	if !ok {
		return nil, fmt.Errorf("add: value is %T, want number", b)
	}
	return af + bf, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func countOf(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return int64(0), nil
	case []any:
		return int64(len(x)), nil
	case map[string]any:
		return int64(len(x)), nil
	case string:
		return int64(len(x)), nil
	default:
		return nil, fmt.Errorf("count: source state is %T, want list, object or string", v)
	}
}
