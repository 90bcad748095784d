package cache

import (
	"strconv"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/pkg/config"
)

func TestNewRedisPings(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	port, err := strconv.Atoi(server.Port())
	require.NoError(t, err)

	client, err := NewRedis(config.RedisConfig{Host: server.Host(), Port: port})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "achievements:lock:sub-1", Key("achievements:", "lock", "sub-1"))
	assert.Equal(t, "lock:sub-1", Key("", "lock", "sub-1"))
}
