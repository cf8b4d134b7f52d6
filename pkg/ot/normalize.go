package ot

// normalizer compacts a component stream: adjacent components of the same
// kind merge, empty ones are dropped. A run is flushed when a component of a
// different kind arrives or the stream ends.
type normalizer[S Sequence[S]] struct {
	out     []Component[S]
	pending bool
	kind    Kind
	count   int
	seg     appender[S]
}

func (n *normalizer[S]) add(c Component[S]) {
	if c.Len() == 0 {
		return
	}
	if n.pending && n.kind != c.Kind {
		n.flush()
	}
	n.pending, n.kind = true, c.Kind
	if c.Kind == Retain {
		n.count += c.Count
	} else {
		n.seg.add(c.Seg)
	}
}

func (n *normalizer[S]) flush() {
	if !n.pending {
		return
	}
	if n.kind == Retain {
		n.out = append(n.out, RetainOf[S](n.count))
	} else {
		n.out = append(n.out, Component[S]{Kind: n.kind, Seg: n.seg.take()})
	}
	n.pending, n.count = false, 0
}

func (n *normalizer[S]) finish() []Component[S] {
	n.flush()
	out := n.out
	n.out = nil
	return out
}

// Normalize returns the compacted equivalent of components.
func Normalize[S Sequence[S]](components []Component[S]) []Component[S] {
	var n normalizer[S]
	for _, c := range components {
		n.add(c)
	}
	return n.finish()
}
