package ot

import (
	"github.com/goccy/go-json"
)

// Sequence is the capability the list algorithm needs from the content it
// edits. Methods are called on the zero value too, which must behave as the
// empty sequence.
type Sequence[S any] interface {
	Len() int
	// Slice returns elements [start, end). Appending to the result must not
	// write into the receiver's storage.
	Slice(start, end int) S
	HasPrefix(prefix S) bool
	// Append may reuse the receiver's storage. Only sequences owned by the
	// caller are appended to.
	Append(other S) S
	OpType() Type
}

// Text is a sequence of characters indexed by rune.
type Text []rune

func (t Text) Len() int { return len(t) }

func (t Text) Slice(start, end int) Text { return t[start:end:end] }

func (t Text) HasPrefix(prefix Text) bool {
	if len(prefix) > len(t) {
		return false
	}
	for i, r := range prefix {
		if t[i] != r {
			return false
		}
	}
	return true
}

func (t Text) Append(other Text) Text { return append(t, other...) }

func (Text) OpType() Type { return TypeText }

func (t Text) String() string { return string(t) }

func (t Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

// Values is an ordered sequence of values.
type Values []Value

func (v Values) Len() int { return len(v) }

func (v Values) Slice(start, end int) Values { return v[start:end:end] }

func (v Values) HasPrefix(prefix Values) bool {
	if len(prefix) > len(v) {
		return false
	}
	for i, e := range prefix {
		if !Equal(v[i], e) {
			return false
		}
	}
	return true
}

func (v Values) Append(other Values) Values { return append(v, other...) }

func (Values) OpType() Type { return TypeArray }

// MarshalJSON encodes an empty sequence as [] rather than null.
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(v))
}

func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for i, e := range raw {
		out[i] = resolveRefs(e)
	}
	*v = out
	return nil
}

// appender accumulates runs of a sequence. The first run is held without
// copying; it is copied into owned storage only when a second run arrives.
type appender[S Sequence[S]] struct {
	buf   S
	owned bool
}

func (a *appender[S]) add(s S) {
	if s.Len() == 0 {
		return
	}
	if a.buf.Len() == 0 {
		a.buf, a.owned = s, false
		return
	}
	if !a.owned {
		var zero S
		a.buf, a.owned = zero.Append(a.buf), true
	}
	a.buf = a.buf.Append(s)
}

// takeOwned is take, copying a run still shared with its source.
func (a *appender[S]) takeOwned() S {
	if !a.owned {
		var zero S
		a.buf, a.owned = zero.Append(a.buf), true
	}
	return a.take()
}

func (a *appender[S]) take() S {
	s := a.buf
	var zero S
	a.buf, a.owned = zero, false
	return s
}
