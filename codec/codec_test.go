package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type review struct {
	Title  string `json:"review_title"`
	Rating uint8  `json:"review_rating"`
}

func TestCodecsAgreeOnWireFormat(t *testing.T) {
	in := review{Title: "Great phone", Rating: 5}

	a := MustMarshal(JSON{}, in)
	b := MustMarshal(GoJSON{}, in)
	assert.JSONEq(t, string(a), string(b))

	var out review
	require.NoError(t, GoJSON{}.Unmarshal(a, &out))
	assert.Equal(t, in, out)
	require.NoError(t, JSON{}.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestGoJSONAppend(t *testing.T) {
	out, err := GoJSON{}.Append([]byte("x"), review{Title: "a", Rating: 1})
	require.NoError(t, err)
	assert.Equal(t, `x{"review_title":"a","review_rating":1}`, string(out))
}

func TestUnmarshalMalformed(t *testing.T) {
	var out review
	require.Error(t, Default.Unmarshal([]byte("{not json"), &out))
}
