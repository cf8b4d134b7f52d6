package ot

// TransformLists rewrites two operations built against the same sequence.
// server' applies after client and client' applies after server; both paths
// reach the same sequence.
//
// When both operations insert at the same index the server's insert comes
// first. An insert strictly inside a range the other side deletes survives and
// splits that delete; an insert at either edge of a deleted range stays
// outside it. Content deleted by both sides is deleted once.
func TransformLists[S Sequence[S]](server, client *ListOp[S]) (*ListOp[S], *ListOp[S], error) {
	if server.baseLen != client.baseLen {
		return nil, nil, transformErrorf("base lengths differ: %d and %d", server.baseLen, client.baseLen)
	}
	var sOut, cOut normalizer[S]
	cs, cc := newCursor(server.components), newCursor(client.components)
	for {
		switch {
		case !cs.done() && cs.kind() == Insert:
			ins := cs.takeRest()
			sOut.add(ins)
			cOut.add(RetainOf[S](ins.Len()))
		case !cc.done() && cc.kind() == Insert:
			ins := cc.takeRest()
			sOut.add(RetainOf[S](ins.Len()))
			cOut.add(ins)
		case cs.done() && cc.done():
			return newListOp(sOut.finish()), newListOp(cOut.finish()), nil
		case cs.done() || cc.done():
			return nil, nil, transformErrorf("component streams end at different positions")
		default:
			n := min(cs.remaining(), cc.remaining())
			x, y := cs.take(n), cc.take(n)
			switch {
			case x.Kind == Retain && y.Kind == Retain:
				sOut.add(x)
				cOut.add(y)
			case x.Kind == Delete && y.Kind == Delete:
				if !x.Seg.HasPrefix(y.Seg) {
					return nil, nil, transformErrorf("both sides delete the same span with different content: %v and %v", x.Seg, y.Seg)
				}
			case x.Kind == Delete:
				sOut.add(x)
			default:
				cOut.add(y)
			}
		}
	}
}
