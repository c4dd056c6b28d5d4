package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/zde37/ringkv/internal/api"
	"github.com/zde37/ringkv/internal/chord"
	"github.com/zde37/ringkv/internal/config"
	"github.com/zde37/ringkv/internal/transport"
	"github.com/zde37/ringkv/pkg"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ringnode: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	defaults := config.DefaultConfig()

	return &cli.App{
		Name:            "ringnode",
		Usage:           "run a node of a Chord key-value ring",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "port",
				Aliases:     []string{"p"},
				DefaultText: "any free port",
				Usage:       "UDP port to listen on",
				Category:    "Network Options",
			},
			&cli.StringFlag{
				Name:     "host",
				Value:    defaults.Host,
				Usage:    "address peers use to reach this node",
				Category: "Network Options",
			},
			&cli.StringFlag{
				Name:     "contact",
				Aliases:  []string{"c"},
				Usage:    "host:port of a ring member to join through; omit to start a new ring",
				Category: "Network Options",
			},
			&cli.IntFlag{
				Name:        "node-id",
				Aliases:     []string{"n"},
				Value:       config.AutoNodeID,
				DefaultText: "hash of the hostname",
				Usage:       "position of this node on the ring",
			},
			&cli.IntFlag{
				Name:     "http-port",
				Usage:    "port for the HTTP status API, 0 disables it",
				Category: "Network Options",
			},
			&cli.StringFlag{
				Name:     "log-level",
				Value:    defaults.LogLevel,
				Usage:    "log level (trace, debug, info, warn, error)",
				Category: "Logging Options",
			},
			&cli.StringFlag{
				Name:     "log-format",
				Value:    defaults.LogFormat,
				Usage:    "log format (json, console)",
				Category: "Logging Options",
			},
			&cli.StringFlag{
				Name:     "log-file",
				Usage:    "also write logs to this file, rotated",
				Category: "Logging Options",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFromFlags(c)
			if err != nil {
				return err
			}
			return run(c.Context, cfg)
		},
	}
}

// configFromFlags copies command line flags over the defaults.
func configFromFlags(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.Host = c.String("host")
	cfg.Contact = c.String("contact")
	cfg.NodeID = c.Int("node-id")
	cfg.HTTPPort = c.Int("http-port")
	cfg.LogLevel = c.String("log-level")
	cfg.LogFormat = c.String("log-format")
	cfg.LogFile = c.String("log-file")

	id, err := cfg.ResolveNodeID()
	if err != nil {
		return nil, err
	}
	cfg.NodeID = id

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*pkg.Logger, error) {
	loggerConfig := pkg.DefaultConfig()
	loggerConfig.Level = cfg.LogLevel
	loggerConfig.Format = cfg.LogFormat
	if cfg.LogFile != "" {
		loggerConfig.File.Enable = true
		loggerConfig.File.Path = cfg.LogFile
	}

	return pkg.New(loggerConfig)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	node, udpServer, err := bindNode(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int("http_port", cfg.HTTPPort).
		Str("contact", cfg.Contact).
		Msg("Starting ring node")

	var httpServer *api.Server
	if cfg.HTTPPort != 0 {
		httpServer, err = api.NewServer(node, logger)
		if err != nil {
			cleanup(node, udpServer, nil, logger)
			return err
		}
		if err := httpServer.Start(cfg.HTTPPort); err != nil {
			cleanup(node, udpServer, nil, logger)
			return fmt.Errorf("failed to start HTTP API server: %w", err)
		}
		node.SetBroadcaster(httpServer.Hub())
	}

	if err := node.Start(); err != nil {
		cleanup(node, udpServer, httpServer, logger)
		return fmt.Errorf("failed to start node: %w", err)
	}

	if cfg.Contact == "" {
		logger.Info().Msg("Waiting for nodes to join the new ring")
	} else {
		logger.Info().Str("contact", cfg.Contact).Msg("Joining existing ring")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	case <-node.ShutdownRequested():
		logger.Info().Msg("Shutdown requested by peer")
	}

	cleanup(node, udpServer, httpServer, logger)
	logger.Info().Msg("Ring node shutdown complete")
	return nil
}

// bindNode binds the UDP socket first so a zero port becomes the one the
// kernel picked, then creates the node on it and starts dispatching.
func bindNode(cfg *config.Config, logger *pkg.Logger) (*chord.ChordNode, *transport.UDPServer, error) {
	udpServer, err := transport.NewUDPServer(net.JoinHostPort("", strconv.Itoa(cfg.Port)), logger)
	if err != nil {
		return nil, nil, err
	}
	if err := udpServer.Listen(); err != nil {
		return nil, nil, fmt.Errorf("failed to bind UDP port: %w", err)
	}
	cfg.Port = udpServer.Port()

	node, err := chord.NewChordNode(cfg, logger)
	if err != nil {
		udpServer.Stop()
		return nil, nil, fmt.Errorf("failed to create node: %w", err)
	}
	node.SetTransport(transport.NewUDPClient(udpServer.Conn(), logger))

	if err := udpServer.Start(node); err != nil {
		node.Shutdown()
		udpServer.Stop()
		return nil, nil, fmt.Errorf("failed to start UDP server: %w", err)
	}
	return node, udpServer, nil
}

// cleanup performs graceful shutdown of all components
func cleanup(node *chord.ChordNode, udpServer *transport.UDPServer, httpServer *api.Server, logger *pkg.Logger) {
	logger.Info().Msg("Starting graceful shutdown")

	if httpServer != nil {
		node.SetBroadcaster(nil)
		if err := httpServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping HTTP server")
		}
	}

	if err := node.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error shutting down node")
	}

	if err := udpServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping UDP server")
	}
}
