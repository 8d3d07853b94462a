package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalar_JSON(t *testing.T) {
	md := Metadata{
		"name":   String("auth"),
		"weight": Number(2.5),
		"done":   Bool(true),
	}

	b, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"auth","weight":2.5,"done":true}`, string(b))

	var back Metadata
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, md, back)
}

func TestScalar_RejectsNonScalar(t *testing.T) {
	for _, in := range []string{`{"a":{"b":1}}`, `{"a":[1]}`, `{"a":null}`} {
		var md Metadata
		assert.Error(t, json.Unmarshal([]byte(in), &md), in)
	}

	_, err := json.Marshal(Metadata{"bad": {}})
	assert.Error(t, err)
}

func TestScalar_Accessors(t *testing.T) {
	s, ok := String("x").Str()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = Number(1).Str()
	assert.False(t, ok)

	assert.Equal(t, "3", Number(3).Text())
	assert.Equal(t, "false", Bool(false).Text())
	assert.Equal(t, KindNumber, Number(0).Kind())
}

func TestMetadata_CloneAndMerge(t *testing.T) {
	var nilMD Metadata
	c := nilMD.Clone()
	assert.NotNil(t, c)
	assert.Empty(t, c)

	md := Metadata{"a": String("1")}
	c = md.Clone()
	c["b"] = Bool(true)
	assert.NotContains(t, md, "b")

	md.Merge(Metadata{"a": String("2"), "c": Number(3)})
	v, ok := md.GetString("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Len(t, md, 2)
}

func TestMetadataFrom(t *testing.T) {
	md, err := MetadataFrom(map[string]any{"s": "x", "i": 3, "f": 1.5, "b": true})
	require.NoError(t, err)
	assert.Equal(t, Metadata{"s": String("x"), "i": Number(3), "f": Number(1.5), "b": Bool(true)}, md)

	_, err = MetadataFrom(map[string]any{"m": map[string]any{}})
	assert.Error(t, err)
}
