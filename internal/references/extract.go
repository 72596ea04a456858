// Package references finds asset identifiers embedded in schema-less records.
package references

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"cloud.google.com/go/firestore"
)

// DefaultKey is the mapping key whose values name an asset.
const DefaultKey = "assetId"

// MaxDepth bounds the walk. Records come from a document store and are
// expected to be acyclic; anything nested deeper is rejected.
const MaxDepth = 64

// ErrTooDeep is returned when a record nests past MaxDepth.
var ErrTooDeep = errors.New("record nesting exceeds depth budget")

// Extract walks node and returns every distinct non-empty value stored under
// key, in first-seen order. Map keys are visited in sorted order so the
// result is stable across calls.
func Extract(node any, key string) ([]string, error) {
	w := walker{key: key, seen: make(map[string]struct{})}
	if err := w.walk(node, 0); err != nil {
		return nil, err
	}
	return w.refs, nil
}

type walker struct {
	key  string
	seen map[string]struct{}
	refs []string
}

func (w *walker) walk(node any, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w (%d levels)", ErrTooDeep, MaxDepth)
	}
	switch v := node.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(v)) {
			child := v[k]
			if k == w.key {
				if ref, ok := scalarRef(child); ok {
					w.add(ref)
					continue
				}
			}
			if err := w.walk(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := w.walk(child, depth+1); err != nil {
				return err
			}
		}
	case []map[string]any:
		for _, child := range v {
			if err := w.walk(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) add(ref string) {
	if _, ok := w.seen[ref]; ok {
		return
	}
	w.seen[ref] = struct{}{}
	w.refs = append(w.refs, ref)
}

// scalarRef stringifies a reference value. Containers under the reference
// key are not references themselves and are walked like any other child.
func scalarRef(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case *firestore.DocumentRef:
		if t == nil {
			return "", false
		}
		return t.ID, t.ID != ""
	case map[string]any, []any, []map[string]any:
		return "", false
	case bool:
		return "", false
	default:
		s := fmt.Sprint(t)
		return s, s != ""
	}
}
