package hub

import (
	"github.com/goccy/go-json"

	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

// Message types exchanged over the websocket.
const (
	TypeInit     = "init"
	TypeOp       = "op"
	TypeAck      = "ack"
	TypeError    = "error"
	TypeSetName  = "setName"
	TypeCursor   = "cursor"
	TypeUserList = "userList"
)

// Inbound is any message a client sends.
type Inbound struct {
	Type     string          `json:"type"`
	Revision int             `json:"revision"`
	Op       json.RawMessage `json:"op,omitempty"`
	Name     string          `json:"name,omitempty"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
}

type InitMessage struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId"`
	Kind     ot.Type         `json:"kind"`
	Revision int             `json:"revision"`
	Snapshot json.RawMessage `json:"snapshot"`
	Color    string          `json:"color"`
}

// OpMessage carries an accepted operation to every client but its author.
type OpMessage struct {
	Type     string          `json:"type"`
	Revision int             `json:"revision"`
	ClientID string          `json:"clientId"`
	Op       json.RawMessage `json:"op"`
}

type AckMessage struct {
	Type     string `json:"type"`
	Revision int    `json:"revision"`
}

// ErrorMessage is followed by a fresh init; the client discards its pending
// operations and starts over from the snapshot.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type CursorMessage struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId"`
	Cursor   json.RawMessage `json:"cursor"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type UserListMessage struct {
	Type  string          `json:"type"`
	Users map[string]User `json:"users"` // client id -> user
}
