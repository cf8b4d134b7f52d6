package hub

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"

	"github.com/shiftregister-vg/gopad-ot/pkg/logger"
	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
	"github.com/shiftregister-vg/gopad-ot/pkg/session"
	"github.com/shiftregister-vg/gopad-ot/pkg/storage"
)

var colorPalette = []string{
	"#e57373", // Red
	"#64b5f6", // Blue
	"#81c784", // Green
	"#ffd54f", // Yellow
	"#ba68c8", // Purple
	"#4db6ac", // Teal
	"#ffb74d", // Orange
	"#a1887f", // Brown
	"#90a4ae", // Gray
}

const saveTimeout = 5 * time.Second

type clientMessage struct {
	client *Client
	msg    Inbound
}

// Document is an open document. Everything except mu-guarded fields is owned
// by the run goroutine.
type Document struct {
	id    string
	store storage.Store
	log   *slog.Logger

	mu      sync.RWMutex
	channel session.Channel
	users   map[string]User

	clients    mapset.Set[*Client]
	register   chan *Client
	unregister chan *Client
	inbound    chan clientMessage
	done       <-chan struct{}

	// stop is called by run once the last client has left. Nil keeps the
	// document open.
	stop func()

	// Latest snapshot announced by the store, picked up by run.
	externalMu sync.Mutex
	external   *storage.Snapshot
	notify     chan struct{}
}

func newDocument(ctx context.Context, ch session.Channel, store storage.Store) *Document {
	return &Document{
		id:         ch.ID(),
		store:      store,
		log:        logger.With("doc", ch.ID()),
		channel:    ch,
		users:      make(map[string]User),
		clients:    mapset.NewThreadUnsafeSet[*Client](),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan clientMessage),
		done:       ctx.Done(),
		notify:     make(chan struct{}, 1),
	}
}

func (d *Document) run(ctx context.Context) {
	openDocuments.Inc()
	defer openDocuments.Dec()
	for {
		select {
		case <-ctx.Done():
			for _, c := range d.clients.ToSlice() {
				d.drop(c)
			}
			d.log.Info("Closed document")
			return
		case c := <-d.register:
			d.join(c)
		case c := <-d.unregister:
			d.leave(c)
		case m := <-d.inbound:
			d.handle(m)
		case <-d.notify:
			d.reload()
		}
		if d.stop != nil && d.clients.Cardinality() == 0 {
			d.stop()
			d.log.Info("Closed idle document")
			return
		}
	}
}

func (d *Document) join(c *Client) {
	c.color = d.nextColor()
	d.clients.Add(c)
	d.mu.Lock()
	d.users[c.id] = User{ID: c.id, Name: c.name, Color: c.color}
	d.mu.Unlock()
	connectedClients.Inc()

	d.sendInit(c)
	d.broadcastUserList()
	d.log.Info("Client registered", "client", c.id, "clients", d.clients.Cardinality())
}

func (d *Document) leave(c *Client) {
	if !d.clients.Contains(c) {
		return
	}
	d.drop(c)
	d.broadcastUserList()
	d.log.Info("Client unregistered", "client", c.id, "clients", d.clients.Cardinality())
}

// drop removes c and closes its send channel, which ends its write pump.
func (d *Document) drop(c *Client) {
	if !d.clients.Contains(c) {
		return
	}
	d.clients.Remove(c)
	close(c.send)
	d.mu.Lock()
	delete(d.users, c.id)
	d.mu.Unlock()
	connectedClients.Dec()
}

func (d *Document) handle(m clientMessage) {
	c := m.client
	if !d.clients.Contains(c) {
		return
	}
	switch m.msg.Type {
	case TypeOp:
		d.submit(c, m.msg)
	case TypeSetName:
		c.name = m.msg.Name
		d.mu.Lock()
		d.users[c.id] = User{ID: c.id, Name: c.name, Color: c.color}
		d.mu.Unlock()
		d.broadcastUserList()
	case TypeCursor:
		d.broadcast(c, CursorMessage{Type: TypeCursor, ClientID: c.id, Cursor: m.msg.Cursor})
	default:
		d.log.Debug("Ignoring message", "client", c.id, "type", m.msg.Type)
	}
}

// submit accepts an operation from c. On failure the client gets the error
// followed by a fresh snapshot. An operation is acknowledged only once its
// revision is saved.
func (d *Document) submit(c *Client, msg Inbound) {
	rev, op, err := d.channel.Submit(msg.Revision, msg.Op)
	if err != nil {
		d.log.Warn("Rejected operation", "client", c.id, "revision", msg.Revision, "error", err)
		d.send(c, ErrorMessage{Type: TypeError, Message: err.Error()})
		if d.clients.Contains(c) {
			d.sendInit(c)
			resyncs.WithLabelValues("rejected").Inc()
		}
		return
	}
	d.log.Debug("Accepted operation", "client", c.id, "base", msg.Revision, "revision", rev)

	if err := d.persist(); errors.Is(err, storage.ErrStale) {
		// Another server committed this revision first. Drop the operation
		// and start everyone over from the stored document.
		d.log.Warn("Stored document is newer, discarding operation", "client", c.id, "revision", rev, "error", err)
		d.send(c, ErrorMessage{Type: TypeError, Message: err.Error()})
		d.refresh()
		d.resyncAll("stale")
		return
	}
	d.send(c, AckMessage{Type: TypeAck, Revision: rev})
	d.broadcast(c, OpMessage{Type: TypeOp, Revision: rev, ClientID: c.id, Op: op})
}

// persist saves the current revision. Failures other than ErrStale are
// logged and otherwise ignored.
func (d *Document) persist() error {
	rev, state, err := d.channel.Snapshot()
	if err != nil {
		d.log.Error("Error encoding document state", "error", err)
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	err = d.store.Save(ctx, d.id, &storage.Snapshot{Kind: d.channel.Kind(), Revision: rev, State: state})
	if err != nil && !errors.Is(err, storage.ErrStale) {
		d.log.Error("Error saving document state", "revision", rev, "error", err)
	}
	return err
}

// refresh replaces the document with the stored one.
func (d *Document) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	snap, err := d.store.Load(ctx, d.id)
	if err == nil {
		err = d.replace(snap)
	}
	if err != nil {
		d.log.Error("Error reloading stored document", "error", err)
		return
	}
	d.log.Info("Reloaded document", "revision", snap.Revision)
}

func (d *Document) replace(snap *storage.Snapshot) error {
	ch, err := session.NewChannel(d.id, snap.Kind, snap.Revision, snap.State)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.channel = ch
	d.mu.Unlock()
	return nil
}

// watch forwards snapshots saved by other servers to run.
func (d *Document) watch(ctx context.Context, w storage.Watcher) {
	if err := w.Watch(ctx, d.id, d.announce); err != nil {
		d.log.Error("Error watching document", "error", err)
	}
}

// announce records snap for run. Only the newest pending snapshot is kept.
func (d *Document) announce(snap *storage.Snapshot) {
	d.externalMu.Lock()
	if d.external == nil || snap.Revision > d.external.Revision {
		d.external = snap
	}
	d.externalMu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// reload replaces the document with a newer announced snapshot and
// resynchronizes every client.
func (d *Document) reload() {
	d.externalMu.Lock()
	snap := d.external
	d.external = nil
	d.externalMu.Unlock()
	if snap == nil || snap.Revision <= d.channel.Revision() {
		return
	}
	if err := d.replace(snap); err != nil {
		d.log.Error("Error loading stored document", "revision", snap.Revision, "error", err)
		return
	}
	d.log.Info("Reloaded document", "revision", snap.Revision)
	d.resyncAll("external")
}

func (d *Document) resyncAll(cause string) {
	for _, c := range d.clients.ToSlice() {
		d.sendInit(c)
	}
	resyncs.WithLabelValues(cause).Add(float64(d.clients.Cardinality()))
}

func (d *Document) sendInit(c *Client) {
	rev, state, err := d.channel.Snapshot()
	if err != nil {
		d.log.Error("Error encoding document state", "error", err)
		return
	}
	d.send(c, InitMessage{
		Type:     TypeInit,
		ClientID: c.id,
		Kind:     d.channel.Kind(),
		Revision: rev,
		Snapshot: state,
		Color:    c.color,
	})
}

func (d *Document) send(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		d.log.Error("Error marshaling message", "error", err)
		return
	}
	d.deliver(c, data)
}

// broadcast sends v to every client except sender, which may be nil.
func (d *Document) broadcast(sender *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		d.log.Error("Error marshaling message", "error", err)
		return
	}
	for _, c := range d.clients.ToSlice() {
		if c != sender {
			d.deliver(c, data)
		}
	}
}

// deliver queues data for c, dropping c if its buffer is full. Clients that
// were already dropped get nothing.
func (d *Document) deliver(c *Client, data []byte) {
	if !d.clients.Contains(c) {
		return
	}
	select {
	case c.send <- data:
	default:
		d.log.Warn("Client buffer full, removing client", "client", c.id)
		d.drop(c)
	}
}

func (d *Document) broadcastUserList() {
	d.broadcast(nil, UserListMessage{Type: TypeUserList, Users: d.userList()})
}

func (d *Document) userList() map[string]User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make(map[string]User, len(d.users))
	for id, u := range d.users {
		users[id] = u
	}
	return users
}

// nextColor returns a random palette color no connected client is using,
// or any palette color once all are taken.
func (d *Document) nextColor() string {
	active := mapset.NewThreadUnsafeSet[string]()
	d.clients.Each(func(c *Client) bool {
		active.Add(c.color)
		return false
	})
	var available []string
	for _, color := range colorPalette {
		if !active.Contains(color) {
			available = append(available, color)
		}
	}
	if len(available) > 0 {
		return available[rand.IntN(len(available))]
	}
	return colorPalette[rand.IntN(len(colorPalette))]
}

func (d *Document) snapshot() (ot.Type, int, []byte, error) {
	d.mu.RLock()
	ch := d.channel
	d.mu.RUnlock()
	rev, state, err := ch.Snapshot()
	return ch.Kind(), rev, state, err
}
