package ot

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Type tags an operation kind on the wire. Numeric tags are encoded as JSON
// numbers, the others as JSON strings.
type Type string

const (
	TypeArray    Type = "0"
	TypeText     Type = "1"
	TypeMap      Type = "map"
	TypeIdentity Type = "identity"
)

// Valid reports whether t is one of the known tags.
func (t Type) Valid() bool {
	switch t {
	case TypeArray, TypeText, TypeMap, TypeIdentity:
		return true
	}
	return false
}

// Name is a human readable name for logs and metric labels.
func (t Type) Name() string {
	switch t {
	case TypeArray:
		return "array"
	case TypeText:
		return "text"
	case TypeMap:
		return "map"
	case TypeIdentity:
		return "identity"
	}
	return "unknown(" + string(t) + ")"
}

// ParseType accepts either a tag ("0", "map") or a name ("array", "text").
func ParseType(s string) (Type, error) {
	switch s {
	case "array", string(TypeArray):
		return TypeArray, nil
	case "text", string(TypeText):
		return TypeText, nil
	case "map", "identity":
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown operation type %q", s)
}

func (t Type) MarshalJSON() ([]byte, error) {
	if _, err := strconv.Atoi(string(t)); err == nil {
		return []byte(t), nil
	}
	return json.Marshal(string(t))
}

func (t *Type) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Type(s)
	} else {
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("invalid operation type %s", data)
		}
		*t = Type(strconv.Itoa(n))
	}
	if !t.Valid() {
		return fmt.Errorf("unknown operation type %s", data)
	}
	return nil
}
