// Package diff computes structural differences between composed history
// states.
//
// An entry is addressed by the dotted path from the state root; slice
// indices appear as path elements. Update entries carry both sides,
// deletions only Deleted and additions only Added.
package diff

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	r3diff "github.com/r3labs/diff/v3"
)

// Entry is one structural difference.
type Entry struct {
	Path       string
	Deleted    any
	Added      any
	HasDeleted bool
	HasAdded   bool
}

// Kind classifies an entry by which sides it carries.
func (e Entry) Kind() string {
	switch {
	case e.HasDeleted && e.HasAdded:
		return "update"
	case e.HasDeleted:
		return "delete"
	default:
		return "add"
	}
}

type entryJSON struct {
	Path    string `json:"path"`
	Deleted any    `json:"deleted,omitempty"`
	Added   any    `json:"added,omitempty"`
}

// MarshalJSON writes {"path", "deleted"?, "added"?}. A side that is present
// but null is written as an explicit null.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := map[string]any{"path": e.Path}
	if e.HasDeleted {
		out["deleted"] = e.Deleted
	}
	if e.HasAdded {
		out["added"] = e.Added
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var wire entryJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	_, hasDeleted := raw["deleted"]
	_, hasAdded := raw["added"]
	*e = Entry{
		Path:       wire.Path,
		Deleted:    wire.Deleted,
		Added:      wire.Added,
		HasDeleted: hasDeleted,
		HasAdded:   hasAdded,
	}
	return nil
}

func (e Entry) String() string {
	switch e.Kind() {
	case "update":
		return fmt.Sprintf("~ %s: %v -> %v", e.Path, e.Deleted, e.Added)
	case "delete":
		return fmt.Sprintf("- %s: %v", e.Path, e.Deleted)
	default:
		return fmt.Sprintf("+ %s: %v", e.Path, e.Added)
	}
}

// Compute returns the entries turning prev into next, sorted by path.
// Nil maps are treated as empty.
func Compute(prev, next map[string]any) ([]Entry, error) {
	if prev == nil {
		prev = map[string]any{}
	}
	if next == nil {
		next = map[string]any{}
	}

	d, err := r3diff.NewDiffer(
		r3diff.AllowTypeMismatch(true),
		r3diff.SliceOrdering(true),
		r3diff.DisableStructValues(),
	)
	if err != nil {
		return nil, fmt.Errorf("create differ: %w", err)
	}

	changes, err := d.Diff(prev, next)
	if err != nil {
		return nil, fmt.Errorf("diff states: %w", err)
	}

	entries := make([]Entry, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, fromChange(c))
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return entries, nil
}

func fromChange(c r3diff.Change) Entry {
	e := Entry{Path: strings.Join(c.Path, ".")}
	switch c.Type {
	case r3diff.CREATE:
		e.Added, e.HasAdded = c.To, true
	case r3diff.DELETE:
		e.Deleted, e.HasDeleted = c.From, true
	default:
		e.Deleted, e.HasDeleted = c.From, c.From != nil
		e.Added, e.HasAdded = c.To, c.To != nil
		if !e.HasDeleted && !e.HasAdded {
			e.HasAdded = true
		}
	}
	return e
}
