package hub_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftregister-vg/gopad-ot/pkg/hub"
	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
	"github.com/shiftregister-vg/gopad-ot/pkg/storage"
)

type received struct {
	Type     string              `json:"type"`
	ClientID string              `json:"clientId"`
	Kind     ot.Type             `json:"kind"`
	Revision int                 `json:"revision"`
	Snapshot json.RawMessage     `json:"snapshot"`
	Op       json.RawMessage     `json:"op"`
	Message  string              `json:"message"`
	Color    string              `json:"color"`
	Cursor   json.RawMessage     `json:"cursor"`
	Users    map[string]hub.User `json:"users"`
}

func newServer(t *testing.T, store storage.Store) (*hub.Hub, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	h := hub.New(store)
	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)
	r.GET("/debug/doc/:id", h.DebugDocument)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads messages until one of type typ arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestCollaboration(t *testing.T) {
	store := storage.NewMemoryStore()
	_, srv := newServer(t, store)

	alice := dial(t, srv, "doc=notes&name=alice")
	initA := next(t, alice, hub.TypeInit)
	assert.Equal(t, ot.TypeText, initA.Kind)
	assert.Equal(t, 0, initA.Revision)
	assert.JSONEq(t, `""`, string(initA.Snapshot))
	assert.NotEmpty(t, initA.ClientID)
	assert.NotEmpty(t, initA.Color)

	bob := dial(t, srv, "doc=notes&name=bob")
	initB := next(t, bob, hub.TypeInit)
	assert.NotEqual(t, initA.ClientID, initB.ClientID)
	assert.NotEqual(t, initA.Color, initB.Color)

	users := next(t, alice, hub.TypeUserList)
	for len(users.Users) < 2 {
		users = next(t, alice, hub.TypeUserList)
	}
	assert.Equal(t, "bob", users.Users[initB.ClientID].Name)

	send(t, alice, map[string]any{"type": "op", "revision": 0, "op": []any{"hello"}})
	ack := next(t, alice, hub.TypeAck)
	assert.Equal(t, 1, ack.Revision)

	op := next(t, bob, hub.TypeOp)
	assert.Equal(t, 1, op.Revision)
	assert.Equal(t, initA.ClientID, op.ClientID)
	assert.JSONEq(t, `["hello"]`, string(op.Op))

	// Bob typed against revision 0; the hub rebases him past alice.
	send(t, bob, map[string]any{"type": "op", "revision": 0, "op": []any{" world"}})
	ack = next(t, bob, hub.TypeAck)
	assert.Equal(t, 2, ack.Revision)
	op = next(t, alice, hub.TypeOp)
	assert.JSONEq(t, `[5," world"]`, string(op.Op))

	snap, err := store.Load(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Revision)
	assert.JSONEq(t, `"hello world"`, string(snap.State))

	send(t, bob, map[string]any{"type": "cursor", "cursor": map[string]int{"index": 3}})
	cur := next(t, alice, hub.TypeCursor)
	assert.Equal(t, initB.ClientID, cur.ClientID)
	assert.JSONEq(t, `{"index":3}`, string(cur.Cursor))
}

func TestRejectedOperationResyncs(t *testing.T) {
	_, srv := newServer(t, storage.NewMemoryStore())

	conn := dial(t, srv, "doc=m&kind=map")
	first := next(t, conn, hub.TypeInit)
	assert.Equal(t, ot.TypeMap, first.Kind)

	send(t, conn, map[string]any{"type": "op", "revision": 7, "op": []any{[]any{"k", map[string]any{"i": 1}}}})
	msg := next(t, conn, hub.TypeError)
	assert.Contains(t, msg.Message, "revision")
	again := next(t, conn, hub.TypeInit)
	assert.Equal(t, 0, again.Revision)
	assert.JSONEq(t, `{}`, string(again.Snapshot))

	send(t, conn, map[string]any{"type": "op", "revision": 0, "op": []any{[]any{"k", "wrong", 2}}})
	next(t, conn, hub.TypeError)
	next(t, conn, hub.TypeInit)
}

func TestStoredDocument(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "list", &storage.Snapshot{
		Kind: ot.TypeArray, Revision: 4, State: []byte(`[1,2]`),
	}))
	_, srv := newServer(t, store)

	// The stored kind wins over the requested one.
	conn := dial(t, srv, "doc=list&kind=text")
	first := next(t, conn, hub.TypeInit)
	assert.Equal(t, ot.TypeArray, first.Kind)
	assert.Equal(t, 4, first.Revision)
	assert.JSONEq(t, `[1,2]`, string(first.Snapshot))

	resp, err := http.Get(srv.URL + "/debug/doc/list")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var debug struct {
		Kind     string              `json:"kind"`
		Revision int                 `json:"revision"`
		Snapshot json.RawMessage     `json:"snapshot"`
		Users    map[string]hub.User `json:"users"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&debug))
	assert.Equal(t, "array", debug.Kind)
	assert.Equal(t, 4, debug.Revision)
	assert.JSONEq(t, `[1,2]`, string(debug.Snapshot))
	assert.Len(t, debug.Users, 1)

	missing, err := http.Get(srv.URL + "/debug/doc/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad, err := http.Get(srv.URL + "/ws?doc=x&kind=tree")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestSharedStore(t *testing.T) {
	store := storage.NewMemoryStore()
	_, one := newServer(t, store)
	_, two := newServer(t, store)

	writer := dial(t, one, "doc=shared")
	next(t, writer, hub.TypeInit)
	reader := dial(t, two, "doc=shared")
	inits := make(chan received, 16)
	go func() {
		defer close(inits)
		for {
			var msg received
			if err := reader.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == hub.TypeInit {
				inits <- msg
			}
		}
	}()
	<-inits

	// The second server watches the store asynchronously, so keep writing
	// until it resynchronizes its client.
	deadline := time.After(5 * time.Second)
	var got received
	for rev := 0; got.Revision == 0; {
		send(t, writer, map[string]any{"type": "op", "revision": rev, "op": []any{"a", rev}})
		rev = next(t, writer, hub.TypeAck).Revision
		select {
		case got = <-inits:
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no resync from the shared store")
		}
	}
	want, err := json.Marshal(strings.Repeat("a", got.Revision))
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got.Snapshot))
}

func TestIdleDocumentClosed(t *testing.T) {
	_, srv := newServer(t, storage.NewMemoryStore())

	conn := dial(t, srv, "doc=idle")
	next(t, conn, hub.TypeInit)
	send(t, conn, map[string]any{"type": "op", "revision": 0, "op": []any{"hi"}})
	next(t, conn, hub.TypeAck)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/debug/doc/idle")
		if !assert.NoError(t, err) {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 5*time.Second, 20*time.Millisecond)

	again := dial(t, srv, "doc=idle")
	first := next(t, again, hub.TypeInit)
	assert.Equal(t, 1, first.Revision)
	assert.JSONEq(t, `"hi"`, string(first.Snapshot))
}

// gatedStore holds loads of one document until open is closed.
type gatedStore struct {
	*storage.MemoryStore
	id   string
	open chan struct{}
}

func (s *gatedStore) Load(ctx context.Context, docID string) (*storage.Snapshot, error) {
	if docID == s.id {
		select {
		case <-s.open:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.MemoryStore.Load(ctx, docID)
}

func TestSlowLoadDoesNotBlockOtherDocuments(t *testing.T) {
	store := &gatedStore{MemoryStore: storage.NewMemoryStore(), id: "slow", open: make(chan struct{})}
	_, srv := newServer(t, store)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?doc=slow"
	slow := make(chan *websocket.Conn, 1)
	go func() {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			conn = nil
		}
		slow <- conn
	}()

	fast := dial(t, srv, "doc=fast")
	next(t, fast, hub.TypeInit)
	select {
	case <-slow:
		t.Fatal("slow document opened before its load finished")
	default:
	}

	close(store.open)
	conn := <-slow
	require.NotNil(t, conn)
	t.Cleanup(func() { conn.Close() })
	first := next(t, conn, hub.TypeInit)
	assert.Equal(t, 0, first.Revision)
}
