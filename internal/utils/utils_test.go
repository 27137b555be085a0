package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJumpHostName(t *testing.T) {
	assert.Equal(t, "ElastiCacheJumpHost-rg-test", JumpHostName("rg-test"))

	rg, ok := ReplicationGroupFromName("ElastiCacheJumpHost-rg-test")
	assert.True(t, ok)
	assert.Equal(t, "rg-test", rg)

	_, ok = ReplicationGroupFromName("bastion")
	assert.False(t, ok)
	_, ok = ReplicationGroupFromName("ElastiCacheJumpHost-")
	assert.False(t, ok)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]int{"CachePort": 6379}))
	assert.Equal(t, "{\n  \"CachePort\": 6379\n}\n", buf.String())

	assert.Error(t, WriteJSON(&buf, make(chan int)))
}
