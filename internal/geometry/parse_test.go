package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuad(t *testing.T) {
	q, err := ParseQuad(" 10,10; 110,10 ;110,110;10,110 ")
	require.NoError(t, err)
	assert.Equal(t, Rect(10, 10, 100, 100), q)

	again, err := ParseQuad(q.String())
	require.NoError(t, err)
	assert.Equal(t, q, again)
}

func TestParseQuad_Errors(t *testing.T) {
	for _, in := range []string{"", "1,2;3,4;5,6", "1,2;3,4;5,6;7", "a,2;3,4;5,6;7,8", "1,b;3,4;5,6;7,8"} {
		_, err := ParseQuad(in)
		assert.Error(t, err, "input %q", in)
	}
}
