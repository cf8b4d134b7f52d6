package storage

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

var (
	// ErrNotFound is returned by Load for a document that was never saved
	ErrNotFound = errors.New("storage: document not found")

	// ErrStale is returned by Save when the store already holds the same or
	// a newer revision
	ErrStale = errors.New("storage: stored revision is not older")
)

// Snapshot represents the persistent state of a document
type Snapshot struct {
	Kind         ot.Type         `json:"kind"`
	Revision     int             `json:"revision"`
	State        json.RawMessage `json:"state"`
	LastModified int64           `json:"lastModified"` // unix timestamp (ms)
}

// Store persists document snapshots. Save never replaces a snapshot with an
// equal or lower revision, so two servers cannot both commit revision N.
type Store interface {
	Save(ctx context.Context, docID string, snap *Snapshot) error
	Load(ctx context.Context, docID string) (*Snapshot, error)
	Delete(ctx context.Context, docID string) error
	Close() error
}

// Watcher is implemented by stores that announce saved snapshots, so that
// several servers can share one backend. Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, docID string, handler func(*Snapshot)) error
}
