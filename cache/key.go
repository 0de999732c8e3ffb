package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Path is the ordered list of namespace segments leading from the router root
// to a procedure, e.g. ["users", "byId"].
type Path []string

// NewPath copies the provided segments into a new Path.
func NewPath(segments ...string) Path {
	if len(segments) == 0 {
		return Path{}
	}
	p := make(Path, len(segments))
	copy(p, segments)
	return p
}

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	return NewPath(p...)
}

// Append returns a new path with the segments added at the end. The receiver
// is never modified.
func (p Path) Append(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// Dotted joins the segments with "." producing the remote procedure identifier.
func (p Path) Dotted() string {
	return strings.Join(p, ".")
}

// HasPrefix reports whether prefix is a leading sub-sequence of p.
// The empty path is a prefix of every path.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both paths hold the same segments.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

// Key identifies cached query entries. Its tuple form is either [], [path] or
// [path, {input?, type?}], see Tuple.
//
// A nil Input means the input is undefined. Kind KindAny (or the zero value)
// means the kind is unknown and is left out of the key, which makes a key
// without input and kind match every entry below its path.
type Key struct {
	Path  Path
	Input any
	Kind  OperationKind
}

// DeriveKey builds the canonical key for a procedure path, call input and
// operation kind.
//
// Mutation keys never carry the input: the argument of a mutation is
// per-invocation data, not a lookup discriminator. They carry the mutation
// kind as a marker instead.
func DeriveKey(path Path, input any, kind OperationKind) Key {
	if kind == "" {
		kind = KindAny
	}
	if kind == KindMutation {
		input = nil
	}
	return Key{
		Path:  path.Clone(),
		Input: input,
		Kind:  kind,
	}
}

// HasInput reports whether the key carries an input component.
func (k Key) HasInput() bool {
	return k.Input != nil
}

// HasKind reports whether the key carries a known operation kind.
func (k Key) HasKind() bool {
	return k.Kind != "" && k.Kind != KindAny
}

// Tuple returns the array form of the key.
//
// When neither input nor kind is present the key degenerates to [path], and
// to [] at the router root rather than [[]], so that a root-level filter
// matches every entry under prefix matching.
func (k Key) Tuple() []any {
	if !k.HasInput() && !k.HasKind() {
		if len(k.Path) == 0 {
			return []any{}
		}
		return []any{[]string(k.Path.Clone())}
	}

	meta := make(map[string]any, 2)
	if k.HasInput() {
		meta["input"] = k.Input
	}
	if k.HasKind() {
		meta["type"] = string(k.Kind)
	}
	return []any{[]string(k.Path.Clone()), meta}
}

// Len returns the number of elements in the tuple form of the key.
func (k Key) Len() int {
	return len(k.Tuple())
}

// String returns the canonical serialized form of the key.
func (k Key) String() string {
	return defaultSerializer.SerializeKey(k)
}

// Equal reports deep value equality between two keys.
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// Hash returns a compact, stable identifier derived from the canonical form.
// Two keys with equal values always share a hash.
func (k Key) Hash() string {
	return hashString(k.String())
}

// Matches reports whether the key is selected by filter.
//
// Matching is partial: the filter path must be a prefix of the key path, a
// known filter kind must equal the key kind, and a filter input must be a
// structural subset of the key input. With exact set, the keys must be equal.
func (k Key) Matches(filter Key, exact bool) bool {
	if exact {
		return k.Equal(filter)
	}
	if !k.Path.HasPrefix(filter.Path) {
		return false
	}
	if filter.HasKind() && filter.Kind != k.Kind {
		return false
	}
	if filter.HasInput() {
		if !k.HasInput() {
			return false
		}
		return partialMatch(Normalize(filter.Input), Normalize(k.Input))
	}
	return true
}

// partialMatch follows the subset semantics used for cache filters: maps
// match when every filter entry matches, lists when the filter is a prefix.
func partialMatch(filter, target any) bool {
	switch f := filter.(type) {
	case map[string]any:
		t, ok := target.(map[string]any)
		if !ok {
			return false
		}
		for name, fv := range f {
			tv, ok := t[name]
			if !ok {
				return false
			}
			if !partialMatch(fv, tv) {
				return false
			}
		}
		return true
	case []any:
		t, ok := target.([]any)
		if !ok || len(f) > len(t) {
			return false
		}
		for i := range f {
			if !partialMatch(f[i], t[i]) {
				return false
			}
		}
		return true
	default:
		return defaultSerializer.serializeNormalized(filter) == defaultSerializer.serializeNormalized(target)
	}
}

func hashString(s string) string {
	return fmt.Sprintf("k%016x", xxhash.Sum64String(s))
}
