package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftregister-vg/gopad-ot/pkg/codec"
	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

func TestEncodeText(t *testing.T) {
	op := ot.NewInsert(3, 1, ot.Text("xy"))
	b, err := codec.Encode(codec.FromText(op))
	require.NoError(t, err)
	assert.Equal(t, `{"type":1,"op":[1,"xy",2]}`, string(b))

	got, err := codec.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, ot.TypeText, got.Type)
	require.NotNil(t, got.Text)
	assert.Equal(t, op.String(), got.Text.String())
	assert.Nil(t, got.Array)
	assert.Nil(t, got.Map)
}

func TestEncodeArray(t *testing.T) {
	op := ot.NewDelete(2, 0, ot.Values{"a"})
	b, err := codec.Encode(codec.FromArray(op))
	require.NoError(t, err)
	assert.Equal(t, `{"type":0,"op":[{"d":["a"]},1]}`, string(b))

	got, err := codec.Decode(b)
	require.NoError(t, err)
	require.NotNil(t, got.Array)
	assert.Equal(t, 2, got.Array.BaseLen())
}

func TestEncodeMap(t *testing.T) {
	mb := ot.NewMapBuilder()
	require.NoError(t, mb.Update("k", nil, "v"))
	b, err := codec.Encode(codec.FromMap(mb.Build()))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"map","op":[["k",{"i":"v"}]]}`, string(b))

	got, err := codec.Decode(b)
	require.NoError(t, err)
	require.NotNil(t, got.Map)
	e, ok := got.Map.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", e.New)
}

func TestEncodeIdentity(t *testing.T) {
	b, err := codec.Encode(codec.Identity())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"identity","op":null}`, string(b))

	got, err := codec.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, codec.Identity(), got)
}

func TestDecodeErrors(t *testing.T) {
	_, err := codec.Decode([]byte(`{"type":"list","op":[]}`))
	assert.ErrorIs(t, err, codec.ErrUnknownType)
	_, err = codec.Decode([]byte(`{"op":[]}`))
	assert.ErrorIs(t, err, codec.ErrUnknownType)
	_, err = codec.Decode([]byte(`{"type":1,"op":{"bad":true}}`))
	assert.Error(t, err)
	_, err = codec.Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = codec.Encode(codec.Op{Type: ot.TypeText})
	assert.Error(t, err)
	_, err = codec.Encode(codec.Op{Type: "other"})
	assert.ErrorIs(t, err, codec.ErrUnknownType)
}
