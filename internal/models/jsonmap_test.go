package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMapValueNil(t *testing.T) {
	var m JSONMap
	v, err := m.Value()
	require.NoError(t, err)
	// A nil map stores as an empty object so cleared memory reads back empty,
	// never null.
	assert.Equal(t, "{}", v)
}

func TestJSONMapScanEmpty(t *testing.T) {
	cases := []interface{}{nil, "", []byte{}}
	for _, value := range cases {
		var m JSONMap
		require.NoError(t, m.Scan(value))
		assert.NotNil(t, m)
		assert.Empty(t, m)
	}
}

func TestJSONMapScanContent(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan(`{"lastInteraction":{"response":"ok"}}`))
	assert.Contains(t, m, "lastInteraction")

	var fromBytes JSONMap
	require.NoError(t, fromBytes.Scan([]byte(`{"visited":"ridge"}`)))
	assert.Equal(t, "ridge", fromBytes["visited"])
}

func TestJSONMapScanUnsupported(t *testing.T) {
	var m JSONMap
	assert.Error(t, m.Scan(42))
}
