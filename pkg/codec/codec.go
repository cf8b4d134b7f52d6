// Package codec encodes operations in a tagged envelope and dispatches on the
// tag when decoding:
//
//	{"type": 1, "op": [3, "abc", {"d": "x"}]}
package codec

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

var ErrUnknownType = errors.New("codec: unknown operation type")

// Op is one of the operation kinds. Type selects which field is set; the
// identity operation carries no payload.
type Op struct {
	Type  ot.Type
	Text  *ot.TextOp
	Array *ot.ArrayOp
	Map   *ot.MapOp
}

func FromText(op *ot.TextOp) Op   { return Op{Type: ot.TypeText, Text: op} }
func FromArray(op *ot.ArrayOp) Op { return Op{Type: ot.TypeArray, Array: op} }
func FromMap(op *ot.MapOp) Op     { return Op{Type: ot.TypeMap, Map: op} }
func Identity() Op                { return Op{Type: ot.TypeIdentity} }

type envelope struct {
	Type ot.Type         `json:"type"`
	Op   json.RawMessage `json:"op"`
}

// Payload encodes the operation without the envelope.
func (o Op) Payload() ([]byte, error) {
	switch o.Type {
	case ot.TypeText:
		if o.Text == nil {
			return nil, fmt.Errorf("codec: text operation is nil")
		}
		return json.Marshal(o.Text)
	case ot.TypeArray:
		if o.Array == nil {
			return nil, fmt.Errorf("codec: array operation is nil")
		}
		return json.Marshal(o.Array)
	case ot.TypeMap:
		if o.Map == nil {
			return nil, fmt.Errorf("codec: map operation is nil")
		}
		return json.Marshal(o.Map)
	case ot.TypeIdentity:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownType, string(o.Type))
}

func Encode(o Op) ([]byte, error) {
	payload, err := o.Payload()
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: o.Type, Op: payload})
}

func Decode(data []byte) (Op, error) {
	var env struct {
		Type json.RawMessage `json:"type"`
		Op   json.RawMessage `json:"op"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Op{}, fmt.Errorf("codec: %w", err)
	}
	var typ ot.Type
	if err := json.Unmarshal(env.Type, &typ); err != nil {
		return Op{}, fmt.Errorf("%w: %v", ErrUnknownType, err)
	}
	return DecodePayload(typ, env.Op)
}

// DecodePayload decodes an operation whose type is known out of band.
func DecodePayload(typ ot.Type, payload []byte) (Op, error) {
	o := Op{Type: typ}
	var err error
	switch typ {
	case ot.TypeText:
		o.Text = new(ot.TextOp)
		err = json.Unmarshal(payload, o.Text)
	case ot.TypeArray:
		o.Array = new(ot.ArrayOp)
		err = json.Unmarshal(payload, o.Array)
	case ot.TypeMap:
		o.Map = new(ot.MapOp)
		err = json.Unmarshal(payload, o.Map)
	case ot.TypeIdentity:
	default:
		return Op{}, fmt.Errorf("%w %q", ErrUnknownType, string(typ))
	}
	if err != nil {
		return Op{}, fmt.Errorf("codec: %s operation: %w", typ.Name(), err)
	}
	return o, nil
}
