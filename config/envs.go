package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config holds the application's configuration values.
type Config struct {
	HostIP        string // Address the server binds to
	UDPPort       int    // Port for the game UDP socket
	GrpcPort      int    // Port for the gRPC admin server, 0 disables it
	SpectatorPort int    // Port for the websocket spectator feed, 0 disables it
	ClientPort    int    // Local UDP port of the client, 0 picks any

	MazeWidth     uint
	MazeHeight    uint
	MazeSeed      uint64 // 0 generates a different maze every run
	CellBatchSize int    // Cells per reliable batch sent after the handshake
	TickInterval  int    // Roster broadcast period (in milliseconds)

	UDPBufferSize          int // Size of the buffer for incoming UDP packets (in bytes)
	UDPHeartbeatExpiration int // Expiration time for UDP heartbeat (in milliseconds)
	RSAKeyBits             int

	LogFile  string // Rolling log file, stdout only when empty
	LogLevel string
}

// Envs holds the application's configuration once Init has run.
var Envs Config

// Init loads the configuration into Envs.
func Init() error {
	c, err := Load()
	if err != nil {
		return err
	}
	Envs = c
	return nil
}

// Load reads the configuration from the environment, after loading a .env
// file if one exists. Unset variables take their defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	e := &env{}
	c := Config{
		HostIP:        e.str("HOST_IP", "0.0.0.0"),
		UDPPort:       e.integer("UDP_PORT", 9090),
		GrpcPort:      e.integer("GRPC_PORT", 9091),
		SpectatorPort: e.integer("SPECTATOR_PORT", 0),
		ClientPort:    e.integer("CLIENT_PORT", 7070),

		MazeWidth:     e.unsigned("MAZE_WIDTH", 50),
		MazeHeight:    e.unsigned("MAZE_HEIGHT", 50),
		MazeSeed:      e.seed("MAZE_SEED"),
		CellBatchSize: e.integer("CELL_BATCH_SIZE", 10),
		TickInterval:  e.integer("TICK_INTERVAL_MS", 50),

		UDPBufferSize:          e.integer("UDP_BUFFER_SIZE", 2048),
		UDPHeartbeatExpiration: e.integer("UDP_HEARTBEAT_EXPIRATION", 5000),
		RSAKeyBits:             e.integer("RSA_KEY_BITS", 2048),

		LogFile:  e.str("LOG_FILE", ""),
		LogLevel: e.str("LOG_LEVEL", "info"),
	}
	if e.err != nil {
		return Config{}, e.err
	}
	return c, c.Validate()
}

// Validate reports every out of range value at once.
func (c Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{
		"UDP_PORT":       c.UDPPort,
		"GRPC_PORT":      c.GrpcPort,
		"SPECTATOR_PORT": c.SpectatorPort,
		"CLIENT_PORT":    c.ClientPort,
	} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s must be a port number, got %d", name, port))
		}
	}
	if c.CellBatchSize < 1 {
		errs = append(errs, fmt.Errorf("CELL_BATCH_SIZE must be positive, got %d", c.CellBatchSize))
	}
	if c.TickInterval < 1 {
		errs = append(errs, fmt.Errorf("TICK_INTERVAL_MS must be positive, got %d", c.TickInterval))
	}
	if c.UDPBufferSize < 64 {
		errs = append(errs, fmt.Errorf("UDP_BUFFER_SIZE must be at least 64, got %d", c.UDPBufferSize))
	}
	if c.UDPHeartbeatExpiration < 1 {
		errs = append(errs, fmt.Errorf("UDP_HEARTBEAT_EXPIRATION must be positive, got %d", c.UDPHeartbeatExpiration))
	}
	if c.RSAKeyBits < 1024 {
		errs = append(errs, fmt.Errorf("RSA_KEY_BITS must be at least 1024, got %d", c.RSAKeyBits))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// Tick returns TickInterval as a duration.
func (c Config) Tick() time.Duration {
	return time.Duration(c.TickInterval) * time.Millisecond
}

// HeartbeatExpiration returns UDPHeartbeatExpiration as a duration.
func (c Config) HeartbeatExpiration() time.Duration {
	return time.Duration(c.UDPHeartbeatExpiration) * time.Millisecond
}

// env reads variables and keeps every parse failure.
type env struct {
	err error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, "an integer", err)
		return def
	}
	return n
}

func (e *env) unsigned(key string, def uint) uint {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		e.fail(key, "a non-negative integer", err)
		return def
	}
	return uint(n)
}

func (e *env) seed(key string) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, "a non-negative integer", err)
		return 0
	}
	return n
}

func (e *env) fail(key, want string, err error) {
	e.err = errors.Join(e.err, fmt.Errorf("environment variable %s must be %s: %w", key, want, err))
}
