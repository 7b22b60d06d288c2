package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Addr  uint64   `json:"addr"`
	Size  uint64   `json:"size"`
	Tag   string   `json:"tag"`
	Edges []uint64 `json:"edges"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsAgree(t *testing.T) {
	in := sample{Addr: 0x7f0000001010, Size: 48, Tag: "heap_test.go:42", Edges: []uint64{1, 2, 3}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}

	// Output of one codec is readable by the other.
	data := MustMarshal(JSON{}, in)
	var out sample
	require.NoError(t, GoJSON{}.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustMarshal(JSON{}, make(chan int))
	})
	assert.NotEmpty(t, MustMarshal(nil, sample{}))
}
