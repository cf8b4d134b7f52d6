package ot

// ComposeLists returns an operation equivalent to applying a and then b.
func ComposeLists[S Sequence[S]](a, b *ListOp[S]) (*ListOp[S], error) {
	if a.targetLen != b.baseLen {
		return nil, composeErrorf("first operation produces length %d, second expects %d", a.targetLen, b.baseLen)
	}
	var out normalizer[S]
	ca, cb := newCursor(a.components), newCursor(b.components)
	for {
		switch {
		case !ca.done() && ca.kind() == Delete:
			// Deletes of the first operation act on the base; the second
			// operation never sees that content.
			out.add(ca.takeRest())
		case !cb.done() && cb.kind() == Insert:
			out.add(cb.takeRest())
		case ca.done() && cb.done():
			return newListOp(out.finish()), nil
		case ca.done() || cb.done():
			return nil, composeErrorf("component streams end at different positions")
		default:
			n := min(ca.remaining(), cb.remaining())
			x, y := ca.take(n), cb.take(n)
			switch {
			case x.Kind == Retain && y.Kind == Retain:
				out.add(x)
			case x.Kind == Retain:
				out.add(y)
			case y.Kind == Retain:
				out.add(x)
			default:
				// The second operation deletes content the first inserted.
				if !x.Seg.HasPrefix(y.Seg) {
					return nil, composeErrorf("deleted %v does not match inserted %v", y.Seg, x.Seg)
				}
			}
		}
	}
}
