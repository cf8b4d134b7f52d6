package session

import (
	"errors"

	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

var ErrNoPending = errors.New("session: acknowledgement with no pending operation")

// Client is a replica that edits locally and synchronizes with a Doc. It is
// in one of three states: synchronized, awaiting an acknowledgement for
// pending, or awaiting with further local edits composed into buffer.
//
// Client is not safe for concurrent use.
type Client[T any] struct {
	state    T
	revision int
	pending  ot.Operation[T]
	buffer   ot.Operation[T]
}

func NewClient[T any](state T, revision int) *Client[T] {
	return &Client[T]{state: state, revision: revision}
}

// Revision is the last server revision this replica has seen.
func (c *Client[T]) Revision() int { return c.revision }

func (c *Client[T]) State() T { return c.state }

// Pending reports whether an operation is waiting for an acknowledgement.
func (c *Client[T]) Pending() bool { return c.pending != nil }

// ApplyLocal applies a local edit. It returns the operation to send to the
// server, or nil when the edit was buffered behind a pending operation.
func (c *Client[T]) ApplyLocal(op ot.Operation[T]) (ot.Operation[T], error) {
	if err := op.Apply(c.state); err != nil {
		return nil, err
	}
	switch {
	case c.pending == nil:
		c.pending = op
		return op, nil
	case c.buffer == nil:
		c.buffer = op
	default:
		composed, err := c.buffer.Compose(op)
		if err != nil {
			return nil, err
		}
		c.buffer = composed
	}
	return nil, nil
}

// ApplyRemote applies an operation accepted by the server from another
// client. Pending and buffered operations are rebased over it and the
// transformed remote operation is applied to the local state and returned.
func (c *Client[T]) ApplyRemote(op ot.Operation[T]) (ot.Operation[T], error) {
	if c.pending != nil {
		remote, pending, err := op.Transform(c.pending)
		if err != nil {
			return nil, err
		}
		op, c.pending = remote, pending
	}
	if c.buffer != nil {
		remote, buffer, err := op.Transform(c.buffer)
		if err != nil {
			return nil, err
		}
		op, c.buffer = remote, buffer
	}
	if err := op.Apply(c.state); err != nil {
		return nil, err
	}
	c.revision++
	return op, nil
}

// Ack records the server's acknowledgement of the pending operation. The
// buffered operation, if any, becomes pending and is returned for sending.
func (c *Client[T]) Ack() (ot.Operation[T], error) {
	if c.pending == nil {
		return nil, ErrNoPending
	}
	c.revision++
	c.pending, c.buffer = c.buffer, nil
	return c.pending, nil
}

// Outgoing returns the operation in flight and the revision it is based on.
func (c *Client[T]) Outgoing() (ot.Operation[T], int) {
	return c.pending, c.revision
}
