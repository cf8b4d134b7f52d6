// Package ot implements operational transformation for shared text, ordered
// arrays and key-value maps.
//
// Every operation kind satisfies Operation. Operations are built with a
// builder (ListBuilder, MapBuilder) and are immutable once built: Compose and
// Transform never modify their operands and always return new operations, so
// a built operation may be read from any number of goroutines.
package ot

// Operation is an edit against a target of shape T.
type Operation[T any] interface {
	// Apply mutates target to reflect the operation. The target must be in
	// the state the operation was built against.
	Apply(target T) error

	// Compose returns an operation equivalent to applying the receiver and
	// then next. next must be defined against the state the receiver
	// produces.
	Compose(next Operation[T]) (Operation[T], error)

	// Transform rewrites two operations built against the same state. It
	// returns self', which applies after concurrent, and concurrent', which
	// applies after the receiver. The receiver wins ties.
	Transform(concurrent Operation[T]) (self, other Operation[T], err error)

	// Invert returns the operation that undoes the receiver when applied to
	// the state the receiver produces.
	Invert() Operation[T]

	// IsNoOp reports whether applying the operation changes nothing.
	IsNoOp() bool

	// Type is the discriminator used by the wire dispatcher.
	Type() Type
}
