package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkBufSizeDefault(t *testing.T) {
	assert.EqualValues(t, 32*1024, ChunkBufSize)
}
