package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beka-birhanu/mazehem/api"
	"github.com/beka-birhanu/mazehem/config"
	"github.com/beka-birhanu/mazehem/crypto"
	"github.com/beka-birhanu/mazehem/gameencoder"
	"github.com/beka-birhanu/mazehem/log"
	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/service"
	"github.com/beka-birhanu/mazehem/socket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Global variables for dependencies
var (
	logOutput    io.Writer = os.Stdout
	appLogger    *log.ZapLogger
	rsaKey       *crypto.RSA
	gameMaze     *maze.Maze
	udpSocket    *socket.Socket
	gameServer   *service.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
	spectator    *api.Spectator
	httpServer   *http.Server
)

func newLogger(name, color string) *log.ZapLogger {
	l, err := log.New(name, color, logOutput, log.WithLevel(config.Envs.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating %s logger: %v\n", name, err)
		os.Exit(1)
	}
	return l
}

func initLogging() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "%s[APP]%s %s[FATAL]%s %v\n", config.ColorGreen, config.ColorReset, config.ColorRed, config.ColorReset, err)
		os.Exit(1)
	}
	if config.Envs.LogFile != "" {
		logOutput = io.MultiWriter(os.Stdout, log.RollingFile(config.Envs.LogFile))
	}
	appLogger = newLogger("APP", config.ColorGreen)
}

func initMaze() {
	var err error
	rsaKey, err = crypto.GenerateRSA(config.Envs.RSAKeyBits)
	if err != nil {
		appLogger.Error(fmt.Sprintf("Generating RSA key: %v", err))
		os.Exit(1)
	}

	var opts []maze.Option
	if config.Envs.MazeSeed != 0 {
		opts = append(opts, maze.WithSeed(config.Envs.MazeSeed))
	}
	gameMaze, err = maze.New(config.Envs.MazeWidth, config.Envs.MazeHeight, opts...)
	if err != nil {
		appLogger.Error(fmt.Sprintf("Generating maze: %v", err))
		os.Exit(1)
	}
	appLogger.Info(fmt.Sprintf("Maze generated: %dx%d, %d cells", gameMaze.Width(), gameMaze.Height(), gameMaze.Len()))
}

func initUDPSocket() {
	listenAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(config.Envs.HostIP, fmt.Sprint(config.Envs.UDPPort)))
	if err != nil {
		appLogger.Error(fmt.Sprintf("Resolving server address: %v", err))
		os.Exit(1)
	}

	udpSocket, err = socket.New(
		socket.Config{
			ListenAddr: listenAddr,
			Logger:     newLogger("SERVER-SOCKET", config.ColorBlue),
		},
		socket.WithReadBufferSize(config.Envs.UDPBufferSize),
		socket.WithHeartbeatExpiration(config.Envs.HeartbeatExpiration()),
	)
	if err != nil {
		appLogger.Error(fmt.Sprintf("Creating UDP socket: %v", err))
		os.Exit(1)
	}
	appLogger.Info("UDP socket initialized")
}

func initSpectator() {
	if config.Envs.SpectatorPort == 0 {
		return
	}
	spectator = api.NewSpectator(newLogger("SPECTATOR", config.ColorMagenta))
	httpServer = &http.Server{
		Addr:              net.JoinHostPort(config.Envs.HostIP, fmt.Sprint(config.Envs.SpectatorPort)),
		Handler:           spectator,
		ReadHeaderTimeout: 5 * time.Second,
	}
	appLogger.Info("Spectator feed initialized")
}

func initGameServer() {
	cfg := &service.Config{
		Socket:        udpSocket,
		Maze:          gameMaze,
		GameEncoder:   gameencoder.Protobuf{},
		Handshaker:    rsaKey,
		Logger:        newLogger("GAME-SERVER", config.ColorCyan),
		TickInterval:  config.Envs.Tick(),
		CellBatchSize: config.Envs.CellBatchSize,
	}
	if spectator != nil {
		cfg.Publisher = spectator
	}

	var err error
	gameServer, err = service.NewServer(cfg)
	if err != nil {
		appLogger.Error(fmt.Sprintf("Creating game server: %v", err))
		os.Exit(1)
	}
	appLogger.Info("Game server initialized")
}

func initSessionController() {
	if config.Envs.GrpcPort == 0 {
		return
	}
	grpcServer = grpc.NewServer()
	healthServer = api.RegisterHealth(grpcServer)
	err := api.RegisterNewSessionController(grpcServer, gameServer, advertisedAddr(udpSocket.Addr()), rsaKey.PublicKeyPEM())
	if err != nil {
		appLogger.Error(fmt.Sprintf("Creating and Registering session controller: %v", err))
		os.Exit(1)
	}
	appLogger.Info("Session controller initialized")
}

// advertisedAddr replaces an unspecified bind address with the address of
// the interface that routes outward.
func advertisedAddr(bound netip.AddrPort) string {
	if !bound.Addr().IsUnspecified() {
		return bound.String()
	}
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return bound.String()
	}
	defer conn.Close()
	local := conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().Unmap()
	return netip.AddrPortFrom(local, bound.Port()).String()
}

func main() {
	initLogging()
	defer func() { _ = appLogger.Sync() }()
	initMaze()
	initUDPSocket()
	initSpectator()
	initGameServer()
	initSessionController()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go udpSocket.Serve()
	defer udpSocket.Stop()
	fmt.Printf("server address: %s\n", advertisedAddr(udpSocket.Addr()))

	if grpcServer != nil {
		addr := net.JoinHostPort(config.Envs.HostIP, fmt.Sprint(config.Envs.GrpcPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			appLogger.Error(fmt.Sprintf("Listening tcp: %v", err))
			os.Exit(1)
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				appLogger.Error(fmt.Sprintf("Serving gRPC: %v", err))
			}
		}()
		defer grpcServer.GracefulStop()
		appLogger.Info(fmt.Sprintf("Serving gRPC at: %s", addr))
	}

	if httpServer != nil {
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(fmt.Sprintf("Serving spectators: %v", err))
			}
		}()
		defer func() {
			spectator.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		appLogger.Info(fmt.Sprintf("Serving spectators at: %s", httpServer.Addr))
	}

	if healthServer != nil {
		healthServer.SetServingStatus(api.HealthService, healthpb.HealthCheckResponse_SERVING)
	}
	if err := gameServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(fmt.Sprintf("Running game server: %v", err))
	}
	if healthServer != nil {
		healthServer.Shutdown()
	}
	appLogger.Info("Shutting down")
}
