package ot

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Value is a JSON value (string, float64, bool, []any, map[string]any) or a
// Ref. A nil Value means absent.
type Value = any

// Ref points at a collaborative object. It is encoded on the wire rather than
// embedding the object.
type Ref struct {
	ID string
}

const refKey = "$ref"

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{refKey: r.ID})
}

func (r Ref) String() string {
	return "ref(" + r.ID + ")"
}

// Equal compares two values. Numbers compare by value regardless of their Go
// type and composites compare structurally.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, aIsRef := a.(Ref)
	rb, bIsRef := b.(Ref)
	if aIsRef || bIsRef {
		return aIsRef && bIsRef && ra == rb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	ea, err := json.Marshal(a)
	if err != nil {
		return false
	}
	eb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// DecodeValue parses a JSON document into a Value, turning {"$ref": id}
// objects into Refs. JSON null decodes to nil.
func DecodeValue(data []byte) (Value, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return resolveRefs(v), nil
}

func resolveRefs(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if id, ok := x[refKey].(string); ok {
				return Ref{ID: id}
			}
		}
		for k, e := range x {
			x[k] = resolveRefs(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = resolveRefs(e)
		}
		return x
	}
	return v
}

// cloneValue deep copies composites so a built operation never shares
// mutable storage with its caller.
func cloneValue(v Value) Value {
	switch x := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(x))
		for k, e := range x {
			c[k] = cloneValue(e)
		}
		return c
	case []any:
		c := make([]any, len(x))
		for i, e := range x {
			c[i] = cloneValue(e)
		}
		return c
	}
	return v
}

func describe(v Value) string {
	if v == nil {
		return "<absent>"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
