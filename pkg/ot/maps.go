package ot

import (
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// MapEntry records that Key changed from Old to New. A nil Old is an
// insertion, a nil New a deletion.
type MapEntry struct {
	Key string
	Old Value
	New Value
}

// MapOp is a sealed key-value diff. Each key appears at most once and never
// with Old equal to New. Entry order is preserved for serialization.
type MapOp struct {
	entries []MapEntry
	index   map[string]int
}

// MapTarget is a key-value structure a map operation can be applied to.
type MapTarget interface {
	Reconcile(key string, oldValue, newValue Value) error
}

// MapReader is implemented by targets that can report the current value of a
// key. MapOp.Apply uses it to check every prior value before changing
// anything.
type MapReader interface {
	Get(key string) Value
}

func (op *MapOp) Entries() []MapEntry {
	return slices.Clone(op.entries)
}

func (op *MapOp) Len() int { return len(op.entries) }

func (op *MapOp) Get(key string) (MapEntry, bool) {
	i, ok := op.index[key]
	if !ok {
		return MapEntry{}, false
	}
	return op.entries[i], true
}

// Keys returns the set of keys the operation touches.
func (op *MapOp) Keys() mapset.Set[string] {
	keys := mapset.NewThreadUnsafeSetWithSize[string](len(op.entries))
	for _, e := range op.entries {
		keys.Add(e.Key)
	}
	return keys
}

func (op *MapOp) Type() Type { return TypeMap }

func (op *MapOp) IsNoOp() bool { return len(op.entries) == 0 }

func (op *MapOp) Apply(target MapTarget) error {
	if r, ok := target.(MapReader); ok {
		for _, e := range op.entries {
			if cur := r.Get(e.Key); !Equal(cur, e.Old) {
				return applyErrorf("key %q holds %s, operation expects %s", e.Key, describe(cur), describe(e.Old))
			}
		}
	}
	for _, e := range op.entries {
		if err := target.Reconcile(e.Key, e.Old, e.New); err != nil {
			return fmt.Errorf("key %q: %w", e.Key, err)
		}
	}
	return nil
}

// Inverse swaps the old and new value of every entry.
func (op *MapOp) Inverse() *MapOp {
	inv := &MapOp{entries: make([]MapEntry, len(op.entries)), index: op.index}
	for i, e := range op.entries {
		inv.entries[i] = MapEntry{Key: e.Key, Old: e.New, New: e.Old}
	}
	return inv
}

func (op *MapOp) Invert() Operation[MapTarget] {
	return op.Inverse()
}

func (op *MapOp) Compose(next Operation[MapTarget]) (Operation[MapTarget], error) {
	n, ok := next.(*MapOp)
	if !ok {
		return nil, composeErrorf("cannot compose map operation with %T", next)
	}
	composed, err := ComposeMaps(op, n)
	if err != nil {
		return nil, err
	}
	return composed, nil
}

func (op *MapOp) Transform(concurrent Operation[MapTarget]) (Operation[MapTarget], Operation[MapTarget], error) {
	c, ok := concurrent.(*MapOp)
	if !ok {
		return nil, nil, transformErrorf("cannot transform map operation against %T", concurrent)
	}
	self, other, err := TransformMaps(op, c)
	if err != nil {
		return nil, nil, err
	}
	return self, other, nil
}

func (op *MapOp) String() string {
	parts := make([]string, len(op.entries))
	for i, e := range op.entries {
		parts[i] = fmt.Sprintf("%s: %s -> %s", e.Key, describe(e.Old), describe(e.New))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ComposeMaps folds every entry of b onto a.
func ComposeMaps(a, b *MapOp) (*MapOp, error) {
	mb := a.builder()
	for _, e := range b.entries {
		if err := mb.Update(e.Key, e.Old, e.New); err != nil {
			return nil, err
		}
	}
	return mb.Build(), nil
}

// TransformMaps rebases client onto server. For a key both sides changed,
// the server's write is treated as first and client' carries the client's
// value on top of it; server' leaves such keys alone so nothing is applied
// twice.
func TransformMaps(server, client *MapOp) (*MapOp, *MapOp, error) {
	touched := client.Keys()
	cb := NewMapBuilder()
	for _, ce := range client.entries {
		se, ok := server.Get(ce.Key)
		if !ok {
			cb.put(ce)
			continue
		}
		if !Equal(se.Old, ce.Old) {
			return nil, nil, transformErrorf("key %q changed from %s on one side and from %s on the other", ce.Key, describe(se.Old), describe(ce.Old))
		}
		if Equal(se.New, ce.New) {
			continue
		}
		cb.put(MapEntry{Key: ce.Key, Old: se.New, New: ce.New})
	}
	sb := NewMapBuilder()
	for _, se := range server.entries {
		if !touched.Contains(se.Key) {
			sb.put(se)
		}
	}
	return sb.Build(), cb.Build(), nil
}

func (op *MapOp) builder() *MapBuilder {
	b := &MapBuilder{
		entries: slices.Clone(op.entries),
		index:   make(map[string]int, len(op.entries)),
	}
	for k, i := range op.index {
		b.index[k] = i
	}
	return b
}

// MapBuilder accumulates updates for one map operation.
type MapBuilder struct {
	entries []MapEntry
	index   map[string]int
}

func NewMapBuilder() *MapBuilder {
	return &MapBuilder{index: make(map[string]int)}
}

// Update records that key changed from oldValue to newValue. A key already
// updated must continue from the value it was last set to.
func (b *MapBuilder) Update(key string, oldValue, newValue Value) error {
	if Equal(oldValue, newValue) {
		return nil
	}
	i, seen := b.index[key]
	if !seen {
		b.put(MapEntry{Key: key, Old: cloneValue(oldValue), New: cloneValue(newValue)})
		return nil
	}
	e := b.entries[i]
	if !Equal(e.New, oldValue) {
		return composeErrorf("key %q: update starts from %s but the key was set to %s", key, describe(oldValue), describe(e.New))
	}
	if Equal(e.Old, newValue) {
		b.remove(i)
		return nil
	}
	b.entries[i].New = cloneValue(newValue)
	return nil
}

// Build seals the accumulated entries and resets the builder.
func (b *MapBuilder) Build() *MapOp {
	op := &MapOp{entries: b.entries, index: b.index}
	b.entries, b.index = nil, make(map[string]int)
	return op
}

// put appends an entry for a key the builder has not seen.
func (b *MapBuilder) put(e MapEntry) {
	b.index[e.Key] = len(b.entries)
	b.entries = append(b.entries, e)
}

func (b *MapBuilder) remove(i int) {
	delete(b.index, b.entries[i].Key)
	b.entries = slices.Delete(b.entries, i, i+1)
	for j := i; j < len(b.entries); j++ {
		b.index[b.entries[j].Key] = j
	}
}

// MapState is an in-memory MapTarget.
type MapState struct {
	values map[string]Value
}

func NewMapState(initial map[string]Value) *MapState {
	s := &MapState{values: make(map[string]Value, len(initial))}
	for k, v := range initial {
		if v != nil {
			s.values[k] = cloneValue(v)
		}
	}
	return s
}

func (s *MapState) Get(key string) Value { return s.values[key] }

func (s *MapState) Len() int { return len(s.values) }

// Values returns a copy of the state.
func (s *MapState) Values() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = cloneValue(v)
	}
	return out
}

func (s *MapState) Reconcile(key string, oldValue, newValue Value) error {
	if cur := s.values[key]; !Equal(cur, oldValue) {
		return applyErrorf("key %q holds %s, expected %s", key, describe(cur), describe(oldValue))
	}
	if newValue == nil {
		delete(s.values, key)
	} else {
		s.values[key] = cloneValue(newValue)
	}
	return nil
}
