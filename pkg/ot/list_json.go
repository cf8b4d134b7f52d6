package ot

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// List operations are encoded as a flat JSON array of tokens:
//
//	3            retain 3
//	"abc"        insert (text); [1, "x"] for arrays
//	{"d": "ab"}  delete
type deleteToken[S Sequence[S]] struct {
	D S `json:"d"`
}

func (op *ListOp[S]) MarshalJSON() ([]byte, error) {
	tokens := make([]any, len(op.components))
	for i, c := range op.components {
		switch c.Kind {
		case Retain:
			tokens[i] = c.Count
		case Insert:
			tokens[i] = c.Seg
		case Delete:
			tokens[i] = deleteToken[S]{D: c.Seg}
		}
	}
	return json.Marshal(tokens)
}

func (op *ListOp[S]) UnmarshalJSON(data []byte) error {
	var tokens []json.RawMessage
	if err := json.Unmarshal(data, &tokens); err != nil {
		return fmt.Errorf("list operation: %w", err)
	}
	b := NewListBuilder[S]()
	for i, tok := range tokens {
		tok = bytes.TrimSpace(tok)
		if len(tok) == 0 {
			return fmt.Errorf("list operation: empty token %d", i)
		}
		switch c := tok[0]; {
		case c == '-' || (c >= '0' && c <= '9'):
			var n int
			if err := json.Unmarshal(tok, &n); err != nil {
				return fmt.Errorf("list operation: token %d: %w", i, err)
			}
			if n < 0 {
				return fmt.Errorf("list operation: token %d: negative retain %d", i, n)
			}
			b.Retain(n)
		case c == '{':
			var wrapper map[string]json.RawMessage
			if err := json.Unmarshal(tok, &wrapper); err != nil {
				return fmt.Errorf("list operation: token %d: %w", i, err)
			}
			raw, ok := wrapper["d"]
			if !ok || len(wrapper) != 1 {
				return fmt.Errorf("list operation: token %d: expected {\"d\": content}", i)
			}
			var seg S
			if err := json.Unmarshal(raw, &seg); err != nil {
				return fmt.Errorf("list operation: token %d: %w", i, err)
			}
			b.Delete(seg)
		default:
			var seg S
			if err := json.Unmarshal(tok, &seg); err != nil {
				return fmt.Errorf("list operation: token %d: %w", i, err)
			}
			b.Insert(seg)
		}
	}
	*op = *b.Build()
	return nil
}
