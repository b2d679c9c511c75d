package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentPreservesOrder(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"z":1,"a":2,"m":3}`))
	require.NoError(t, err)
	require.Len(t, doc, 3)
	assert.Equal(t, "z", doc[0].Key)
	assert.Equal(t, "a", doc[1].Key)
	assert.Equal(t, "m", doc[2].Key)
}

func TestParseDocumentNested(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"outer":{"b":1,"a":[true,null,"x"]},"n":null}`))
	require.NoError(t, err)
	require.Len(t, doc, 2)

	outer, ok := doc[0].Value.(Document)
	require.True(t, ok)
	assert.Equal(t, "b", outer[0].Key)
	assert.Equal(t, int64(1), outer[0].Value)

	arr, ok := outer[1].Value.(Array)
	require.True(t, ok)
	require.Len(t, arr, 3)
	assert.Equal(t, true, arr[0])
	assert.Nil(t, arr[1])
	assert.Equal(t, "x", arr[2])

	assert.Equal(t, "n", doc[1].Key)
	assert.Nil(t, doc[1].Value)
}

func TestParseDocumentRejectsNonObject(t *testing.T) {
	_, err := ParseDocument([]byte(`[1,2,3]`))
	require.ErrorIs(t, err, ErrNotObject)
	_, err = ParseDocument([]byte(`"scalar"`))
	require.ErrorIs(t, err, ErrNotObject)
}

func TestParseDocumentRejectsFloats(t *testing.T) {
	_, err := ParseDocument([]byte(`{"x":1.5}`))
	require.Error(t, err)
	_, err = ParseDocument([]byte(`{"x":1e3}`))
	require.Error(t, err)
}

func TestParseDocumentRejectsTrailingData(t *testing.T) {
	_, err := ParseDocument([]byte(`{"a":1}{"b":2}`))
	require.Error(t, err)
}

func TestDocumentMarshalJSONKeepsOrder(t *testing.T) {
	doc := Obj("second", int64(2), "first", int64(1))
	out, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"second":2,"first":1}`, string(out))
}

func TestDocumentUnmarshalJSONRoundTrip(t *testing.T) {
	raw := `{"z":"ζ","nested":{"k":[1,2]},"flag":false}`
	var doc Document
	require.NoError(t, doc.UnmarshalJSON([]byte(raw)))
	out, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestDocumentGet(t *testing.T) {
	doc := Obj("a", int64(1), "b", "two")
	v, ok := doc.Get("b")
	require.True(t, ok)
	assert.Equal(t, "two", v)
	_, ok = doc.Get("missing")
	assert.False(t, ok)
}

func TestObjPanicsOnOddArguments(t *testing.T) {
	assert.Panics(t, func() { Obj("only-key") })
	assert.Panics(t, func() { Obj(1, "value") })
}
