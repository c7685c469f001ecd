package tubetap

import (
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestTailBuffer(t *testing.T) {
	assert := assert_.New(t)

	b := &tailBuffer{limit: 16}
	b.WriteLine("short")
	assert.Equal("short\n", b.String())

	b.WriteLine("first line")
	b.WriteLine("last")
	// The partial line left at the front is dropped
	assert.Equal("last\n", b.String())

	n, err := b.Write([]byte(strings.Repeat("x", 40)))
	assert.NoError(err)
	assert.Equal(40, n)
	assert.Len(b.buf, 16)
}
