package ot

import (
	"fmt"
	"slices"
	"strings"
)

// ListOp is a sealed list operation: a normalized component stream together
// with the length it applies against and the length it produces.
type ListOp[S Sequence[S]] struct {
	components []Component[S]
	baseLen    int
	targetLen  int
}

type (
	TextOp  = ListOp[Text]
	ArrayOp = ListOp[Values]
)

// ListTarget is a mutable sequence a list operation can be applied to.
type ListTarget[S any] interface {
	Len() int
	Insert(index int, seg S)
	Delete(index int, seg S)
}

func newListOp[S Sequence[S]](components []Component[S]) *ListOp[S] {
	op := &ListOp[S]{components: components}
	for _, c := range components {
		switch c.Kind {
		case Retain:
			op.baseLen += c.Count
			op.targetLen += c.Count
		case Insert:
			op.targetLen += c.Len()
		case Delete:
			op.baseLen += c.Len()
		}
	}
	return op
}

// Components returns a copy of the component stream. Segments are copied
// too, but values inside an array segment are not.
func (op *ListOp[S]) Components() []Component[S] {
	var zero S
	out := slices.Clone(op.components)
	for i, c := range out {
		if c.Kind != Retain {
			out[i].Seg = zero.Append(c.Seg)
		}
	}
	return out
}

func (op *ListOp[S]) BaseLen() int { return op.baseLen }

func (op *ListOp[S]) TargetLen() int { return op.targetLen }

func (op *ListOp[S]) Type() Type {
	var zero S
	return zero.OpType()
}

func (op *ListOp[S]) IsNoOp() bool {
	for _, c := range op.components {
		if c.Kind != Retain {
			return false
		}
	}
	return true
}

// Inverse swaps inserts and deletes.
func (op *ListOp[S]) Inverse() *ListOp[S] {
	inv := &ListOp[S]{
		components: make([]Component[S], len(op.components)),
		baseLen:    op.targetLen,
		targetLen:  op.baseLen,
	}
	for i, c := range op.components {
		switch c.Kind {
		case Insert:
			c.Kind = Delete
		case Delete:
			c.Kind = Insert
		}
		inv.components[i] = c
	}
	return inv
}

func (op *ListOp[S]) Invert() Operation[ListTarget[S]] {
	return op.Inverse()
}

// ListReader is a ListTarget whose contents can be read back.
type ListReader[S any] interface {
	ListTarget[S]
	Value() S
}

// Apply mutates target. Deleted content is checked when target is a
// ListReader; otherwise only its length is.
func (op *ListOp[S]) Apply(target ListTarget[S]) error {
	if n := target.Len(); n != op.baseLen {
		return applyErrorf("target length %d, operation expects %d", n, op.baseLen)
	}
	if r, ok := target.(ListReader[S]); ok {
		if _, err := op.ApplyTo(r.Value()); err != nil {
			return err
		}
	}
	index := 0
	for _, c := range op.components {
		switch c.Kind {
		case Retain:
			index += c.Count
		case Insert:
			target.Insert(index, c.Seg)
			index += c.Len()
		case Delete:
			target.Delete(index, c.Seg)
		}
	}
	return nil
}

// ApplyTo returns the result of applying the operation to doc, checking that
// every deleted segment is present. The result shares no storage with doc or
// the operation.
func (op *ListOp[S]) ApplyTo(doc S) (S, error) {
	var zero S
	if n := doc.Len(); n != op.baseLen {
		return zero, applyErrorf("sequence length %d, operation expects %d", n, op.baseLen)
	}
	var out appender[S]
	pos := 0
	for _, c := range op.components {
		switch c.Kind {
		case Retain:
			out.add(doc.Slice(pos, pos+c.Count))
			pos += c.Count
		case Insert:
			out.add(c.Seg)
		case Delete:
			if !doc.Slice(pos, doc.Len()).HasPrefix(c.Seg) {
				return zero, applyErrorf("deleted content %v not found at %d", c.Seg, pos)
			}
			pos += c.Len()
		}
	}
	return out.takeOwned(), nil
}

func (op *ListOp[S]) Compose(next Operation[ListTarget[S]]) (Operation[ListTarget[S]], error) {
	n, ok := next.(*ListOp[S])
	if !ok {
		return nil, composeErrorf("cannot compose %s operation with %T", op.Type().Name(), next)
	}
	composed, err := ComposeLists(op, n)
	if err != nil {
		return nil, err
	}
	return composed, nil
}

func (op *ListOp[S]) Transform(concurrent Operation[ListTarget[S]]) (Operation[ListTarget[S]], Operation[ListTarget[S]], error) {
	c, ok := concurrent.(*ListOp[S])
	if !ok {
		return nil, nil, transformErrorf("cannot transform %s operation against %T", op.Type().Name(), concurrent)
	}
	self, other, err := TransformLists(op, c)
	if err != nil {
		return nil, nil, err
	}
	return self, other, nil
}

func (op *ListOp[S]) String() string {
	parts := make([]string, len(op.components))
	for i, c := range op.components {
		parts[i] = c.String()
	}
	return fmt.Sprintf("[%s]@%d", strings.Join(parts, " "), op.baseLen)
}

// ListBuilder accumulates components for one list operation. A builder is
// owned by a single goroutine; Build seals the result.
type ListBuilder[S Sequence[S]] struct {
	norm normalizer[S]
}

func NewListBuilder[S Sequence[S]]() *ListBuilder[S] {
	return &ListBuilder[S]{}
}

func (b *ListBuilder[S]) Retain(n int) *ListBuilder[S] {
	if n < 0 {
		panic(fmt.Sprintf("ot: negative retain %d", n))
	}
	b.norm.add(RetainOf[S](n))
	return b
}

func (b *ListBuilder[S]) Insert(seg S) *ListBuilder[S] {
	var zero S
	b.norm.add(InsertOf(zero.Append(seg)))
	return b
}

func (b *ListBuilder[S]) Delete(seg S) *ListBuilder[S] {
	var zero S
	b.norm.add(DeleteOf(zero.Append(seg)))
	return b
}

// Build seals the accumulated components and resets the builder.
func (b *ListBuilder[S]) Build() *ListOp[S] {
	return newListOp(b.norm.finish())
}

// NewListOp builds an operation from a raw component stream.
func NewListOp[S Sequence[S]](components ...Component[S]) *ListOp[S] {
	b := NewListBuilder[S]()
	for _, c := range components {
		switch c.Kind {
		case Retain:
			b.Retain(c.Count)
		case Insert:
			b.Insert(c.Seg)
		case Delete:
			b.Delete(c.Seg)
		}
	}
	return b.Build()
}

// NewInsert inserts seg at index into a sequence of length base.
func NewInsert[S Sequence[S]](base, index int, seg S) *ListOp[S] {
	return NewListBuilder[S]().Retain(index).Insert(seg).Retain(base - index).Build()
}

// NewRetain is the no-op on a sequence of length base.
func NewRetain[S Sequence[S]](base int) *ListOp[S] {
	return NewListBuilder[S]().Retain(base).Build()
}

// NewDelete deletes seg, found at index, from a sequence of length base.
func NewDelete[S Sequence[S]](base, index int, seg S) *ListOp[S] {
	return NewListBuilder[S]().Retain(index).Delete(seg).Retain(base - index - seg.Len()).Build()
}

// Buffer is an in-memory ListTarget.
type Buffer[S Sequence[S]] struct {
	seq S
}

func NewBuffer[S Sequence[S]](initial S) *Buffer[S] {
	var zero S
	return &Buffer[S]{seq: zero.Append(initial)}
}

func (b *Buffer[S]) Len() int { return b.seq.Len() }

// Value returns a copy of the buffer contents.
func (b *Buffer[S]) Value() S {
	var zero S
	return zero.Append(b.seq)
}

func (b *Buffer[S]) Insert(index int, seg S) {
	var zero S
	b.seq = zero.Append(b.seq.Slice(0, index)).Append(seg).Append(b.seq.Slice(index, b.seq.Len()))
}

func (b *Buffer[S]) Delete(index int, seg S) {
	var zero S
	b.seq = zero.Append(b.seq.Slice(0, index)).Append(b.seq.Slice(index+seg.Len(), b.seq.Len()))
}
