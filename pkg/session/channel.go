package session

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/shiftregister-vg/gopad-ot/pkg/codec"
	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

// Channel is a document of any kind, driven with encoded operation payloads.
type Channel interface {
	ID() string
	Kind() ot.Type
	Revision() int
	// Snapshot returns the current revision and the encoded state.
	Snapshot() (int, []byte, error)
	// Submit decodes payload as an operation against revision base, accepts
	// it and returns the new revision with the encoded operation as applied.
	Submit(base int, payload []byte) (int, []byte, error)
}

// NewChannel opens a document of the given kind from an encoded state. An
// empty state opens an empty document.
func NewChannel(id string, kind ot.Type, revision int, state []byte) (Channel, error) {
	switch kind {
	case ot.TypeText:
		var initial ot.Text
		if err := decodeState(state, &initial); err != nil {
			return nil, fmt.Errorf("session: text state: %w", err)
		}
		return newListChannel(id, kind, revision, initial, func(o codec.Op) *ot.TextOp { return o.Text }), nil
	case ot.TypeArray:
		var initial ot.Values
		if err := decodeState(state, &initial); err != nil {
			return nil, fmt.Errorf("session: array state: %w", err)
		}
		return newListChannel(id, kind, revision, initial, func(o codec.Op) *ot.ArrayOp { return o.Array }), nil
	case ot.TypeMap:
		m := ot.NewMapState(nil)
		if err := decodeState(state, m); err != nil {
			return nil, fmt.Errorf("session: map state: %w", err)
		}
		return &channel[ot.MapTarget]{
			doc:      NewDoc[ot.MapTarget](id, kind, m, revision),
			pick:     func(o codec.Op) ot.Operation[ot.MapTarget] { return o.Map },
			snapshot: func() ([]byte, error) { return json.Marshal(m) },
		}, nil
	case ot.TypeIdentity:
		return &identityChannel{id: id, revision: revision}, nil
	}
	return nil, fmt.Errorf("%w %q", codec.ErrUnknownType, string(kind))
}

func decodeState(state []byte, v any) error {
	if len(state) == 0 {
		return nil
	}
	return json.Unmarshal(state, v)
}

func newListChannel[S ot.Sequence[S]](id string, kind ot.Type, revision int, initial S, pick func(codec.Op) *ot.ListOp[S]) Channel {
	buf := ot.NewBuffer(initial)
	return &channel[ot.ListTarget[S]]{
		doc:      NewDoc[ot.ListTarget[S]](id, kind, buf, revision),
		pick:     func(o codec.Op) ot.Operation[ot.ListTarget[S]] { return pick(o) },
		snapshot: func() ([]byte, error) { return json.Marshal(buf.Value()) },
	}
}

type channel[T any] struct {
	doc      *Doc[T]
	pick     func(codec.Op) ot.Operation[T]
	snapshot func() ([]byte, error)
}

func (c *channel[T]) ID() string { return c.doc.ID() }

func (c *channel[T]) Kind() ot.Type { return c.doc.Kind() }

func (c *channel[T]) Revision() int { return c.doc.Revision() }

func (c *channel[T]) Snapshot() (int, []byte, error) {
	var (
		rev  int
		data []byte
	)
	err := c.doc.View(func(_ T, revision int) error {
		var err error
		rev = revision
		data, err = c.snapshot()
		return err
	})
	return rev, data, err
}

func (c *channel[T]) Submit(base int, payload []byte) (int, []byte, error) {
	decoded, err := codec.DecodePayload(c.doc.Kind(), payload)
	if err != nil {
		opsRejected.WithLabelValues(c.doc.Kind().Name(), rejectReason(err)).Inc()
		return 0, nil, err
	}
	rev, applied, err := c.doc.Submit(base, c.pick(decoded))
	if err != nil {
		return 0, nil, err
	}
	out, err := json.Marshal(applied)
	if err != nil {
		return 0, nil, fmt.Errorf("session: encode operation: %w", err)
	}
	return rev, out, nil
}

// identityChannel acknowledges identity operations and keeps no history or
// state.
type identityChannel struct {
	mu       sync.Mutex
	id       string
	revision int
}

func (c *identityChannel) ID() string { return c.id }

func (c *identityChannel) Kind() ot.Type { return ot.TypeIdentity }

func (c *identityChannel) Revision() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

func (c *identityChannel) Snapshot() (int, []byte, error) {
	return c.Revision(), []byte("null"), nil
}

func (c *identityChannel) Submit(base int, payload []byte) (int, []byte, error) {
	if _, err := codec.DecodePayload(ot.TypeIdentity, payload); err != nil {
		return 0, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if base < 0 || base > c.revision {
		return 0, nil, fmt.Errorf("%w: base %d, document %s is at %d", ErrRevision, base, c.id, c.revision)
	}
	c.revision++
	opsAccepted.WithLabelValues(ot.TypeIdentity.Name()).Inc()
	return c.revision, []byte("null"), nil
}
