// Package hub serves documents to websocket clients. Each document runs one
// goroutine that accepts operations and broadcasts them, so every client sees
// accepted operations in revision order.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/shiftregister-vg/gopad-ot/pkg/logger"
	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
	"github.com/shiftregister-vg/gopad-ot/pkg/session"
	"github.com/shiftregister-vg/gopad-ot/pkg/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc
	store  storage.Store

	mu   sync.Mutex
	docs map[string]*Document
}

func New(store storage.Store) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		ctx:    ctx,
		cancel: cancel,
		store:  store,
		docs:   make(map[string]*Document),
	}
}

// Close stops every document loop and disconnects their clients.
func (h *Hub) Close() {
	h.cancel()
}

// document returns the open document id, loading it from the store or
// creating an empty one of the given kind. The load runs without h.mu held.
func (h *Hub) document(ctx context.Context, id string, kind ot.Type) (*Document, error) {
	if err := h.ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	doc, ok := h.docs[id]
	h.mu.Unlock()
	if ok {
		return doc, nil
	}

	ch, err := h.open(ctx, id, kind)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ctx.Err(); err != nil {
		return nil, err
	}
	if doc, ok := h.docs[id]; ok {
		return doc, nil
	}
	docCtx, cancel := context.WithCancel(h.ctx)
	doc = newDocument(docCtx, ch, h.store)
	doc.stop = func() {
		h.release(doc)
		cancel()
	}
	h.docs[id] = doc
	go doc.run(docCtx)
	if w, ok := h.store.(storage.Watcher); ok {
		go doc.watch(docCtx, w)
	}
	doc.log.Info("Opened document", "kind", ch.Kind().Name(), "revision", ch.Revision())
	return doc, nil
}

// release forgets doc, unless id has been reopened since.
func (h *Hub) release(doc *Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.docs[doc.id] == doc {
		delete(h.docs, doc.id)
	}
}

func (h *Hub) open(ctx context.Context, id string, kind ot.Type) (session.Channel, error) {
	snap, err := h.store.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return session.NewChannel(id, kind, 0, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return session.NewChannel(id, snap.Kind, snap.Revision, snap.State)
}

// HandleWebSocket attaches a client to the document named by the doc query
// parameter. A new document gets the kind query parameter, text by default;
// an existing one keeps its kind.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	docID := c.DefaultQuery("doc", "default")
	kind := ot.TypeText
	if k := c.Query("kind"); k != "" {
		var err error
		if kind, err = ot.ParseType(k); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	doc, err := h.document(c.Request.Context(), docID, kind)
	if err != nil {
		logger.Error("Failed to open document", "doc", docID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open document"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "doc", docID, "error", err)
		return
	}
	client := newClient(conn, doc, c.Query("name"))
	for !h.attach(client) {
		// The document went idle before the client registered; reopen it.
		if doc, err = h.document(c.Request.Context(), docID, kind); err != nil {
			logger.Warn("Failed to reopen document", "doc", docID, "error", err)
			conn.Close()
			return
		}
		client.doc = doc
	}
	client.doc.log.Info("New client connected", "client", client.id)

	go client.writePump()
	go client.readPump()
}

// attach registers client with its document. It reports false if the
// document loop has stopped.
func (h *Hub) attach(client *Client) bool {
	select {
	case client.doc.register <- client:
		return true
	case <-client.doc.done:
		return false
	}
}

// DebugDocument reports the current state of an open document.
func (h *Hub) DebugDocument(c *gin.Context) {
	docID := c.Param("id")
	h.mu.Lock()
	doc, ok := h.docs[docID]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	kind, rev, state, err := doc.snapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	body, err := json.Marshal(gin.H{
		"id":       docID,
		"kind":     kind.Name(),
		"revision": rev,
		"snapshot": json.RawMessage(state),
		"users":    doc.userList(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
