package ot

import "fmt"

// Identity is the operation for targets that carry no data. It has no state,
// so every Identity value is the same operation.
//
// Composing or transforming it means operation kinds were routed to the
// wrong place; both panic with ErrInvalidUse.
type Identity[T any] struct{}

func (Identity[T]) Apply(T) error { return nil }

func (Identity[T]) Compose(next Operation[T]) (Operation[T], error) {
	panic(fmt.Errorf("%w: compose with %T", ErrInvalidUse, next))
}

func (Identity[T]) Transform(concurrent Operation[T]) (Operation[T], Operation[T], error) {
	panic(fmt.Errorf("%w: transform against %T", ErrInvalidUse, concurrent))
}

func (id Identity[T]) Invert() Operation[T] { return id }

func (Identity[T]) IsNoOp() bool { return true }

func (Identity[T]) Type() Type { return TypeIdentity }

func (Identity[T]) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (Identity[T]) String() string { return "identity" }
