package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/beka-birhanu/mazehem/client"
	"github.com/beka-birhanu/mazehem/config"
	"github.com/beka-birhanu/mazehem/gameencoder"
	"github.com/beka-birhanu/mazehem/log"
	"github.com/beka-birhanu/mazehem/socket"
)

var draw = flag.Bool("draw", false, "redraw the maze on every update instead of logging positions")

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-draw] <address:port>\n", os.Args[0])
	flag.PrintDefaults()
}

func resolve(arg string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(arg); err == nil {
		return ap, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", arg)
	if err != nil {
		return netip.AddrPort{}, err
	}
	ap := udpAddr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	server, err := resolve(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid server address %q: %v\n", flag.Arg(0), err)
		flag.Usage()
		os.Exit(1)
	}

	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "%s[CLIENT]%s %s[FATAL]%s %v\n", config.ColorYellow, config.ColorReset, config.ColorRed, config.ColorReset, err)
		os.Exit(1)
	}
	logger, err := log.New("CLIENT", config.ColorYellow, os.Stderr, log.WithLevel(config.Envs.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	sock, err := socket.New(
		socket.Config{
			ListenAddr: &net.UDPAddr{Port: config.Envs.ClientPort},
			Logger:     logger,
		},
		socket.WithReadBufferSize(config.Envs.UDPBufferSize),
		socket.WithHeartbeatExpiration(config.Envs.HeartbeatExpiration()),
	)
	if err != nil {
		logger.Error(fmt.Sprintf("Creating UDP socket: %v", err))
		os.Exit(1)
	}
	go sock.Serve()
	defer sock.Stop()

	input := client.NewLineInput()
	go func() {
		if err := input.ReadFrom(os.Stdin); err != nil {
			logger.Warning(fmt.Sprintf("reading input: %v", err))
		}
	}()

	var sink client.Sink = client.NewLogSink(logger)
	if *draw {
		sink = client.NewTextSink(os.Stdout, config.Envs.MazeWidth, config.Envs.MazeHeight)
	}

	agent, err := client.NewAgent(&client.Config{
		Socket:       sock,
		Server:       server,
		GameEncoder:  gameencoder.Protobuf{},
		Input:        input,
		Sink:         sink,
		Logger:       logger,
		TickInterval: config.Envs.Tick(),
		Width:        config.Envs.MazeWidth,
		Height:       config.Envs.MazeHeight,
	})
	if err != nil {
		logger.Error(fmt.Sprintf("Creating client agent: %v", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = agent.Run(ctx)
	switch {
	case errors.Is(err, client.ErrServerLost):
		logger.Error(err.Error())
		sock.Stop()
		os.Exit(1)
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Error(fmt.Sprintf("Running client: %v", err))
		sock.Stop()
		os.Exit(1)
	}
}
