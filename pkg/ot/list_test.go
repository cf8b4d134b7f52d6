package ot_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

func ins(base, index int, s string) *ot.TextOp {
	return ot.NewInsert(base, index, ot.Text(s))
}

func del(base, index int, s string) *ot.TextOp {
	return ot.NewDelete(base, index, ot.Text(s))
}

func text(ops ...ot.Component[ot.Text]) *ot.TextOp {
	return ot.NewListOp(ops...)
}

func r(n int) ot.Component[ot.Text] { return ot.RetainOf[ot.Text](n) }
func i(s string) ot.Component[ot.Text] { return ot.InsertOf(ot.Text(s)) }
func d(s string) ot.Component[ot.Text] { return ot.DeleteOf(ot.Text(s)) }

func apply(t *testing.T, doc string, ops ...*ot.TextOp) string {
	t.Helper()
	cur := ot.Text(doc)
	for _, op := range ops {
		var err error
		cur, err = op.ApplyTo(cur)
		require.NoError(t, err, "applying %v to %q", op, string(cur))
	}
	return string(cur)
}

func TestNormalize(t *testing.T) {
	got := ot.Normalize([]ot.Component[ot.Text]{r(1), i(""), r(1)})
	assert.Equal(t, []ot.Component[ot.Text]{r(2)}, got)

	got = ot.Normalize([]ot.Component[ot.Text]{i("ab"), i("c"), r(0), d("x"), d("yz"), r(2), r(3)})
	assert.Equal(t, "[insert(abc) delete(xyz) retain(5)]@8", ot.NewListOp(got...).String())

	assert.Empty(t, ot.Normalize([]ot.Component[ot.Text]{r(0), i(""), d("")}))
}

func TestBuilder(t *testing.T) {
	op := ot.NewListBuilder[ot.Text]().
		Retain(2).
		Insert(ot.Text("ab")).
		Insert(ot.Text("c")).
		Delete(ot.Text("xy")).
		Retain(0).
		Retain(3).
		Build()
	assert.Equal(t, 7, op.BaseLen())
	assert.Equal(t, 8, op.TargetLen())
	assert.Equal(t, ot.TypeText, op.Type())
	assert.False(t, op.IsNoOp())
	assert.Len(t, op.Components(), 4)

	assert.True(t, text(r(5)).IsNoOp())
	assert.True(t, text().IsNoOp())
	assert.True(t, ot.NewRetain[ot.Values](4).IsNoOp())
	assert.Equal(t, 4, ot.NewRetain[ot.Values](4).BaseLen())
	assert.Panics(t, func() { ot.NewListBuilder[ot.Text]().Retain(-1) })
}

func TestBuilderCopiesSegments(t *testing.T) {
	seg := ot.Text("abc")
	op := ot.NewListBuilder[ot.Text]().Insert(seg).Build()
	seg[0] = 'z'
	assert.Equal(t, "abc", apply(t, "", op))
}

func TestComponentsAreCopies(t *testing.T) {
	op := text(i("abc"), r(2), d("xy"))
	comps := op.Components()
	comps[0].Seg[0] = 'z'
	comps[2].Seg[1] = 'z'
	comps[1].Count = 9
	assert.Equal(t, "[insert(abc) retain(2) delete(xy)]@4", op.String())

	arr := ot.NewListBuilder[ot.Values]().Insert(ot.Values{1.0, "a"}).Build()
	arr.Components()[0].Seg[0] = "changed"
	assert.Equal(t, ot.Values{1.0, "a"}, arr.Components()[0].Seg)
}

func TestApplyToResultIsOwned(t *testing.T) {
	doc := ot.Values{1.0, 2.0}
	out, err := ot.NewRetain[ot.Values](2).ApplyTo(doc)
	require.NoError(t, err)
	out[0] = "changed"
	assert.Equal(t, ot.Values{1.0, 2.0}, doc)

	insert := ot.NewListBuilder[ot.Text]().Insert(ot.Text("abc")).Build()
	got, err := insert.ApplyTo(nil)
	require.NoError(t, err)
	got[0] = 'z'
	again, err := insert.ApplyTo(nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestApplyTo(t *testing.T) {
	assert.Equal(t, "afoobcd", apply(t, "abcd", ins(4, 1, "foo")))
	assert.Equal(t, "ad", apply(t, "abcd", del(4, 1, "bc")))
	assert.Equal(t, "aXd", apply(t, "abcd", text(r(1), d("bc"), i("X"), r(1))))

	_, err := ins(3, 0, "x").ApplyTo(ot.Text("abcd"))
	assert.ErrorIs(t, err, ot.ErrApply)
	_, err = del(4, 1, "xx").ApplyTo(ot.Text("abcd"))
	assert.ErrorIs(t, err, ot.ErrApply)
}

func TestApplyBuffer(t *testing.T) {
	buf := ot.NewBuffer(ot.Text("hello world"))
	op := text(r(6), d("world"), i("there"))
	require.NoError(t, op.Apply(buf))
	assert.Equal(t, "hello there", string(buf.Value()))

	assert.ErrorIs(t, ins(3, 0, "x").Apply(buf), ot.ErrApply)
	assert.ErrorIs(t, text(d("hello"), r(6)).Apply(buf), ot.ErrApply)
	assert.Equal(t, "hello there", string(buf.Value()))
}

func TestInvert(t *testing.T) {
	op := text(r(1), d("bc"), i("XY"), r(1), i("!"))
	assert.Equal(t, "aXYd!", apply(t, "abcd", op))
	inv := op.Inverse()
	assert.Equal(t, op.TargetLen(), inv.BaseLen())
	assert.Equal(t, op.BaseLen(), inv.TargetLen())
	assert.Equal(t, "abcd", apply(t, "aXYd!", inv))
	assert.Equal(t, "abcd", apply(t, "abcd", op, op.Invert().(*ot.TextOp)))
}

func TestCompose(t *testing.T) {
	a := ins(3, 1, "xy")  // abc -> axybc
	b := del(5, 2, "ybc") // axybc -> ax
	c, err := ot.ComposeLists(a, b)
	require.NoError(t, err)
	assert.Equal(t, "[retain(1) insert(x) delete(bc)]@3", c.String())
	assert.Equal(t, "ax", apply(t, "abc", c))

	via, err := a.Compose(b)
	require.NoError(t, err)
	assert.Equal(t, c.String(), via.(*ot.TextOp).String())

	// Consecutive deletes merge into one.
	c, err = ot.ComposeLists(del(3, 1, "b"), del(2, 1, "c"))
	require.NoError(t, err)
	assert.Equal(t, "[retain(1) delete(bc)]@3", c.String())
}

func TestComposeErrors(t *testing.T) {
	_, err := ot.ComposeLists(ins(3, 1, "xy"), del(4, 0, "a"))
	assert.ErrorIs(t, err, ot.ErrCompose)

	// The second operation claims to delete content the first did not insert.
	_, err = ot.ComposeLists(ins(3, 1, "xy"), del(5, 1, "ab"))
	assert.ErrorIs(t, err, ot.ErrCompose)
}

func TestTransform(t *testing.T) {
	const doc = "0123456789"
	run := func(server, client, wantServer, wantClient *ot.TextOp, andReverse bool) {
		t.Helper()
		sp, cp, err := ot.TransformLists(server, client)
		require.NoError(t, err)
		assert.Equal(t, wantServer.String(), sp.String())
		assert.Equal(t, wantClient.String(), cp.String())
		assert.Equal(t, apply(t, doc, server, cp), apply(t, doc, client, sp))

		if andReverse {
			cp, sp, err = ot.TransformLists(client, server)
			require.NoError(t, err)
			assert.Equal(t, wantServer.String(), sp.String())
			assert.Equal(t, wantClient.String(), cp.String())
		}
	}

	// Test insert-insert.
	run(ins(10, 1, "f"), ins(10, 1, "foo"), ins(13, 1, "f"), ins(11, 2, "foo"), false)
	run(ins(10, 1, "foo"), ins(10, 1, "f"), ins(11, 1, "foo"), ins(13, 4, "f"), false)
	run(ins(10, 1, "foo"), ins(10, 2, "foo"), ins(13, 1, "foo"), ins(13, 5, "foo"), true)
	run(ins(10, 2, "foo"), ins(10, 1, "foo"), ins(13, 5, "foo"), ins(13, 1, "foo"), true)

	// Test insert-delete and delete-insert.
	run(ins(10, 2, "foo"), del(10, 0, "0"), ins(9, 1, "foo"), del(13, 0, "0"), true)
	run(ins(10, 2, "foo"), del(10, 1, "12"), ins(8, 1, "foo"), text(r(1), d("1"), r(3), d("2"), r(7)), true)
	run(ins(10, 2, "foo"), del(10, 2, "23"), ins(8, 2, "foo"), del(13, 5, "23"), true)
	run(ins(10, 3, "foo"), del(10, 1, "12"), ins(8, 1, "foo"), del(13, 1, "12"), true)
	run(ins(10, 2, "f"), del(10, 1, "123"), ins(7, 1, "f"), text(r(1), d("1"), r(1), d("23"), r(6)), true)

	// Test delete-delete.
	run(del(10, 0, "0"), del(10, 0, "0"), text(r(9)), text(r(9)), true)
	run(del(10, 0, "0"), del(10, 0, "01"), text(r(8)), del(9, 0, "1"), true)
	run(del(10, 0, "01"), del(10, 3, "3456"), del(6, 0, "01"), del(8, 1, "3456"), true)
	run(del(10, 2, "23"), del(10, 3, "3456"), del(6, 2, "2"), del(8, 2, "456"), true)
	run(del(10, 3, "34"), del(10, 3, "3456"), text(r(6)), del(8, 3, "56"), true)
	run(del(10, 4, "45"), del(10, 3, "3456"), text(r(6)), del(8, 3, "36"), true)
	run(del(10, 6, "67"), del(10, 3, "3456"), del(6, 3, "7"), del(8, 3, "345"), true)
	run(del(10, 8, "89"), del(10, 3, "3456"), del(6, 4, "89"), del(8, 3, "3456"), true)
}

func TestTransformDeleteDeleteLiteral(t *testing.T) {
	base := "abcdefghijklmnopqrst"
	server := del(20, 1, base[1:6])
	client := del(20, 7, base[7:9])
	sp, cp, err := ot.TransformLists(server, client)
	require.NoError(t, err)
	assert.Equal(t, del(18, 1, base[1:6]).String(), sp.String())
	assert.Equal(t, del(15, 2, base[7:9]).String(), cp.String())
	assert.Equal(t, 18, sp.BaseLen())
	assert.Equal(t, 15, cp.BaseLen())
}

func TestTransformTieBreak(t *testing.T) {
	x, y := ins(3, 1, "x"), ins(3, 1, "y")

	xp, yp, err := ot.TransformLists(x, y)
	require.NoError(t, err)
	assert.Equal(t, "axybc", apply(t, "abc", x, yp))
	assert.Equal(t, "axybc", apply(t, "abc", y, xp))

	yp, xp, err = ot.TransformLists(y, x)
	require.NoError(t, err)
	assert.Equal(t, "ayxbc", apply(t, "abc", x, yp))
	assert.Equal(t, "ayxbc", apply(t, "abc", y, xp))
}

func TestTransformErrors(t *testing.T) {
	_, _, err := ot.TransformLists(ins(3, 0, "x"), ins(4, 0, "y"))
	assert.ErrorIs(t, err, ot.ErrTransform)

	_, _, err = ot.TransformLists(del(4, 0, "ab"), del(4, 0, "cd"))
	assert.ErrorIs(t, err, ot.ErrTransform)

	var arr ot.Operation[ot.ListTarget[ot.Values]] = ot.NewInsert(0, 0, ot.Values{1})
	_, err = arr.Compose(ot.Identity[ot.ListTarget[ot.Values]]{})
	assert.ErrorIs(t, err, ot.ErrCompose)
	_, _, err = arr.Transform(ot.Identity[ot.ListTarget[ot.Values]]{})
	assert.ErrorIs(t, err, ot.ErrTransform)
}

func TestCollect(t *testing.T) {
	op, err := ot.CollectLists[ot.Text]()
	require.NoError(t, err)
	assert.Nil(t, op)

	var c ot.ListCollector[ot.Text]
	_, ok := c.Result()
	assert.False(t, ok)

	history := []*ot.TextOp{
		ins(0, 0, "hello"),
		ins(5, 5, " world"),
		del(11, 0, "hello"),
		ins(6, 0, "brave"),
	}
	for _, h := range history {
		require.NoError(t, c.Add(h))
	}
	op, ok = c.Result()
	require.True(t, ok)
	assert.Equal(t, "brave world", apply(t, "", op))
	assert.Equal(t, apply(t, "", history...), apply(t, "", op))

	_, err = ot.CollectLists(ins(0, 0, "ab"), ins(3, 0, "c"))
	assert.ErrorIs(t, err, ot.ErrCompose)
}

const alphabet = "abcxyz"

func randomText(rnd *rand.Rand) ot.Text {
	n := 1 + rnd.Intn(3)
	out := make(ot.Text, n)
	for k := range out {
		out[k] = rune(alphabet[rnd.Intn(len(alphabet))])
	}
	return out
}

func randomOp(rnd *rand.Rand, doc ot.Text) *ot.TextOp {
	b := ot.NewListBuilder[ot.Text]()
	pos := 0
	for pos < len(doc) {
		n := 1 + rnd.Intn(min(3, len(doc)-pos))
		switch rnd.Intn(3) {
		case 0:
			b.Retain(n)
		case 1:
			b.Delete(doc.Slice(pos, pos+n))
		default:
			b.Insert(randomText(rnd))
			continue
		}
		pos += n
	}
	if rnd.Intn(2) == 0 {
		b.Insert(randomText(rnd))
	}
	return b.Build()
}

func TestListProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for n := 0; n < 500; n++ {
		doc := randomText(rnd)
		for k := rnd.Intn(4); k > 0; k-- {
			doc = append(doc, randomText(rnd)...)
		}

		a := randomOp(rnd, doc)
		afterA, err := a.ApplyTo(doc)
		require.NoError(t, err)

		// Invert is a two-sided inverse.
		back, err := a.Inverse().ApplyTo(afterA)
		require.NoError(t, err)
		require.Equal(t, string(doc), string(back))

		// Applying a composition equals applying in sequence.
		b := randomOp(rnd, afterA)
		afterB, err := b.ApplyTo(afterA)
		require.NoError(t, err)
		ab, err := ot.ComposeLists(a, b)
		require.NoError(t, err)
		got, err := ab.ApplyTo(doc)
		require.NoError(t, err)
		require.Equal(t, string(afterB), string(got), "compose %v %v", a, b)

		// Transform converges.
		server, client := randomOp(rnd, doc), randomOp(rnd, doc)
		sp, cp, err := ot.TransformLists(server, client)
		require.NoError(t, err)
		left := apply(t, string(doc), server, cp)
		right := apply(t, string(doc), client, sp)
		require.Equal(t, left, right, "transform %v %v", server, client)
	}
}

func TestArrayOps(t *testing.T) {
	doc := ot.Values{"a", 1, true}
	server := ot.NewInsert(3, 1, ot.Values{map[string]any{"k": "v"}})
	client := ot.NewDelete(3, 1, ot.Values{1.0})
	assert.Equal(t, ot.TypeArray, server.Type())

	sp, cp, err := ot.TransformLists(server, client)
	require.NoError(t, err)

	left := ot.NewBuffer(doc)
	require.NoError(t, server.Apply(left))
	require.NoError(t, cp.Apply(left))

	right := ot.NewBuffer(doc)
	require.NoError(t, client.Apply(right))
	require.NoError(t, sp.Apply(right))

	want := ot.Values{"a", map[string]any{"k": "v"}, true}
	assert.Equal(t, want, left.Value())
	assert.Equal(t, want, right.Value())

	got, err := client.ApplyTo(doc)
	require.NoError(t, err)
	assert.Equal(t, ot.Values{"a", true}, got)
}
