// Package session drives the OT engine for a single document: the
// authoritative revision log on the server and the replica state machine on a
// client.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shiftregister-vg/gopad-ot/pkg/logger"
	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

var (
	// ErrRevision is returned for a base revision the document cannot
	// transform from. The client must reload a snapshot.
	ErrRevision = errors.New("session: revision out of range")

	// ErrKind is returned for an operation of the wrong kind for a document.
	ErrKind = errors.New("session: operation kind does not match document")
)

// Doc is the authoritative copy of a document. Submissions are serialized by
// a mutex, so exactly one transform runs per document at a time.
type Doc[T any] struct {
	mu      sync.Mutex
	id      string
	kind    ot.Type
	state   T
	offset  int
	history []ot.Operation[T]
}

// NewDoc returns a document at revision holding state. History before
// revision is not available, so submissions based on an earlier revision are
// rejected.
func NewDoc[T any](id string, kind ot.Type, state T, revision int) *Doc[T] {
	return &Doc[T]{id: id, kind: kind, state: state, offset: revision}
}

func (d *Doc[T]) ID() string { return d.id }

func (d *Doc[T]) Kind() ot.Type { return d.kind }

func (d *Doc[T]) Revision() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset + len(d.history)
}

// Submit accepts op, built by a client against revision base. The operation
// is transformed against every operation accepted since base, with the
// accepted operation in the server role, then applied. It returns the new
// revision and the operation as applied, which is what other clients receive.
func (d *Doc[T]) Submit(base int, op ot.Operation[T]) (int, ot.Operation[T], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rev, err := d.submit(base, op)
	if err != nil {
		opsRejected.WithLabelValues(d.kind.Name(), rejectReason(err)).Inc()
		logger.Debug("Rejected operation", "doc", d.id, "base", base, "error", err)
		return 0, nil, err
	}
	opsAccepted.WithLabelValues(d.kind.Name()).Inc()
	return rev, d.history[len(d.history)-1], nil
}

func (d *Doc[T]) submit(base int, op ot.Operation[T]) (int, error) {
	rev := d.offset + len(d.history)
	if base < d.offset || base > rev {
		return 0, fmt.Errorf("%w: base %d, document %s has revisions %d to %d", ErrRevision, base, d.id, d.offset, rev)
	}
	if op.Type() != d.kind {
		return 0, fmt.Errorf("%w: %s operation on %s document", ErrKind, op.Type().Name(), d.kind.Name())
	}
	concurrent := d.history[base-d.offset:]
	for _, past := range concurrent {
		_, next, err := past.Transform(op)
		if err != nil {
			return 0, err
		}
		op = next
	}
	transformsTotal.WithLabelValues(d.kind.Name()).Add(float64(len(concurrent)))
	historyLength.WithLabelValues(d.kind.Name()).Observe(float64(len(concurrent)))
	if err := op.Apply(d.state); err != nil {
		return 0, err
	}
	d.history = append(d.history, op)
	return rev + 1, nil
}

// Since returns the operations accepted after revision rev.
func (d *Doc[T]) Since(rev int) ([]ot.Operation[T], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rev < d.offset || rev > d.offset+len(d.history) {
		return nil, fmt.Errorf("%w: %d", ErrRevision, rev)
	}
	return append([]ot.Operation[T](nil), d.history[rev-d.offset:]...), nil
}

// View calls fn with the current state and revision. fn must not retain
// state.
func (d *Doc[T]) View(fn func(state T, revision int) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.state, d.offset+len(d.history))
}
