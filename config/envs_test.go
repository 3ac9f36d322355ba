package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", c.HostIP)
	assert.Equal(t, 9090, c.UDPPort)
	assert.Equal(t, 9091, c.GrpcPort)
	assert.Equal(t, 0, c.SpectatorPort)
	assert.Equal(t, 7070, c.ClientPort)
	assert.Equal(t, uint(50), c.MazeWidth)
	assert.Equal(t, uint(50), c.MazeHeight)
	assert.Zero(t, c.MazeSeed)
	assert.Equal(t, 10, c.CellBatchSize)
	assert.Equal(t, 50*time.Millisecond, c.Tick())
	assert.Equal(t, 2048, c.UDPBufferSize)
	assert.Equal(t, 5*time.Second, c.HeartbeatExpiration())
	assert.Equal(t, 2048, c.RSAKeyBits)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UDP_PORT", "4000")
	t.Setenv("MAZE_WIDTH", "8")
	t.Setenv("MAZE_HEIGHT", "6")
	t.Setenv("MAZE_SEED", "42")
	t.Setenv("SPECTATOR_PORT", "8080")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, c.UDPPort)
	assert.Equal(t, uint(8), c.MazeWidth)
	assert.Equal(t, uint(6), c.MazeHeight)
	assert.Equal(t, uint64(42), c.MazeSeed)
	assert.Equal(t, 8080, c.SpectatorPort)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadRejectsUnparsable(t *testing.T) {
	t.Setenv("UDP_PORT", "nine")
	t.Setenv("MAZE_WIDTH", "-3")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "UDP_PORT")
	assert.ErrorContains(t, err, "MAZE_WIDTH")
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	t.Setenv("GRPC_PORT", "70000")
	t.Setenv("RSA_KEY_BITS", "512")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "GRPC_PORT")
	assert.ErrorContains(t, err, "RSA_KEY_BITS")
	assert.ErrorContains(t, err, "LOG_LEVEL")
}

func TestInitSetsEnvs(t *testing.T) {
	t.Setenv("HOST_IP", "127.0.0.1")
	require.NoError(t, Init())
	assert.Equal(t, "127.0.0.1", Envs.HostIP)
}
