package ot

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Map operations are encoded as a JSON array of entries:
//
//	[key, old, new]      update
//	[key, {"i": new}]    insertion
//	[key, {"d": old}]    deletion
func (op *MapOp) MarshalJSON() ([]byte, error) {
	entries := make([][]any, len(op.entries))
	for i, e := range op.entries {
		switch {
		case e.Old == nil:
			entries[i] = []any{e.Key, map[string]Value{"i": e.New}}
		case e.New == nil:
			entries[i] = []any{e.Key, map[string]Value{"d": e.Old}}
		default:
			entries[i] = []any{e.Key, e.Old, e.New}
		}
	}
	return json.Marshal(entries)
}

func (op *MapOp) UnmarshalJSON(data []byte) error {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("map operation: %w", err)
	}
	b := NewMapBuilder()
	for i, entry := range raw {
		e, err := decodeMapEntry(entry)
		if err != nil {
			return fmt.Errorf("map operation: entry %d: %w", i, err)
		}
		if _, dup := b.index[e.Key]; dup {
			return fmt.Errorf("map operation: entry %d: duplicate key %q", i, e.Key)
		}
		if err := b.Update(e.Key, e.Old, e.New); err != nil {
			return fmt.Errorf("map operation: entry %d: %w", i, err)
		}
	}
	*op = *b.Build()
	return nil
}

func decodeMapEntry(entry []json.RawMessage) (MapEntry, error) {
	var e MapEntry
	if len(entry) != 2 && len(entry) != 3 {
		return e, fmt.Errorf("expected 2 or 3 elements, got %d", len(entry))
	}
	if err := json.Unmarshal(entry[0], &e.Key); err != nil {
		return e, fmt.Errorf("key: %w", err)
	}
	if len(entry) == 3 {
		var err error
		if e.Old, err = DecodeValue(entry[1]); err != nil {
			return e, fmt.Errorf("old value: %w", err)
		}
		if e.New, err = DecodeValue(entry[2]); err != nil {
			return e, fmt.Errorf("new value: %w", err)
		}
		return e, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(entry[1], &wrapper); err != nil {
		return e, err
	}
	if len(wrapper) != 1 {
		return e, fmt.Errorf("expected {\"i\": value} or {\"d\": value}")
	}
	var err error
	if v, ok := wrapper["i"]; ok {
		e.New, err = DecodeValue(v)
	} else if v, ok := wrapper["d"]; ok {
		e.Old, err = DecodeValue(v)
	} else {
		return e, fmt.Errorf("expected {\"i\": value} or {\"d\": value}")
	}
	return e, err
}

// MapState is encoded as a JSON object.
func (s *MapState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.values)
}

func (s *MapState) UnmarshalJSON(data []byte) error {
	v, err := DecodeValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(map[string]any)
	if v != nil && !ok {
		return fmt.Errorf("map state: expected a JSON object")
	}
	*s = *NewMapState(obj)
	return nil
}
