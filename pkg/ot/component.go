package ot

import "fmt"

// Kind is the kind of a list component.
type Kind int

const (
	Retain Kind = iota
	Insert
	Delete
)

func (k Kind) String() string {
	switch k {
	case Retain:
		return "retain"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Component is one positional instruction of a list operation. Count is set
// for Retain, Seg for Insert and Delete.
type Component[S Sequence[S]] struct {
	Kind  Kind
	Count int
	Seg   S
}

func RetainOf[S Sequence[S]](n int) Component[S] {
	return Component[S]{Kind: Retain, Count: n}
}

func InsertOf[S Sequence[S]](seg S) Component[S] {
	return Component[S]{Kind: Insert, Seg: seg}
}

func DeleteOf[S Sequence[S]](seg S) Component[S] {
	return Component[S]{Kind: Delete, Seg: seg}
}

// Len is the number of elements the component covers.
func (c Component[S]) Len() int {
	if c.Kind == Retain {
		return c.Count
	}
	return c.Seg.Len()
}

// slice returns the part of c covering [start, end).
func (c Component[S]) slice(start, end int) Component[S] {
	if c.Kind == Retain {
		return RetainOf[S](end - start)
	}
	return Component[S]{Kind: c.Kind, Seg: c.Seg.Slice(start, end)}
}

func (c Component[S]) String() string {
	if c.Kind == Retain {
		return fmt.Sprintf("retain(%d)", c.Count)
	}
	return fmt.Sprintf("%s(%v)", c.Kind, c.Seg)
}

// cursor walks a component stream, handing out components in pieces.
type cursor[S Sequence[S]] struct {
	components []Component[S]
	i          int
	offset     int
}

func newCursor[S Sequence[S]](components []Component[S]) *cursor[S] {
	return &cursor[S]{components: components}
}

func (c *cursor[S]) done() bool {
	return c.i >= len(c.components)
}

func (c *cursor[S]) kind() Kind {
	return c.components[c.i].Kind
}

func (c *cursor[S]) remaining() int {
	return c.components[c.i].Len() - c.offset
}

// take consumes n elements of the current component.
func (c *cursor[S]) take(n int) Component[S] {
	cur := c.components[c.i]
	part := cur.slice(c.offset, c.offset+n)
	c.offset += n
	if c.offset == cur.Len() {
		c.i++
		c.offset = 0
	}
	return part
}

// takeRest consumes what is left of the current component.
func (c *cursor[S]) takeRest() Component[S] {
	return c.take(c.remaining())
}
