package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/thisissamridh/Mesh/internal/config"
	"github.com/thisissamridh/Mesh/internal/market"
	"github.com/thisissamridh/Mesh/internal/notify"
	"github.com/thisissamridh/Mesh/internal/payment"
	"github.com/thisissamridh/Mesh/internal/registry"
	"github.com/thisissamridh/Mesh/internal/store/postgres"
	"github.com/thisissamridh/Mesh/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewLogger("registryd")
	logger.Info().Str("environment", cfg.App.Environment).Msg("Starting Mesh registry")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store backend.
	var store market.Store
	switch cfg.Store.Backend {
	case "postgres":
		pgStore, pool, err := postgres.Connect(ctx, cfg.Database.GetDSN())
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
		store = pgStore
	default:
		store = market.NewMemStore()
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("Store ready")

	directory := registry.NewDirectory()
	engine := market.NewEngine(store, directory)

	// NATS: dial out or run an in-process server.
	natsURL := cfg.NATS.URL
	var ns *server.Server
	if cfg.NATS.Embedded {
		opts, err := embeddedServerOptions(cfg.NATS.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid NATS URL for embedded server")
		}
		ns, err = server.NewServer(opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create embedded NATS server")
		}
		go ns.Start()
		if !ns.ReadyForConnections(10 * time.Second) {
			logger.Fatal().Msg("Embedded NATS server not ready")
		}
		natsURL = ns.ClientURL()
		logger.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	nc, err := nats.Connect(
		natsURL,
		nats.Name(cfg.App.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	// Optional broadcast board.
	var notifier *notify.Notifier
	if cfg.Redis.Enabled {
		board, err := notify.NewBoard(notify.BoardConfig{
			RedisAddr:     cfg.Redis.GetRedisAddr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer board.Close()
		notifier = notify.NewNotifier(board, engine, config.NewLogger("notify"))
	}

	payments := payment.NewClient(payment.ClientConfig{
		FacilitatorURL: cfg.Payment.FacilitatorURL,
		Timeout:        time.Duration(cfg.Payment.TimeoutMS) * time.Millisecond,
		RatePerSecond:  cfg.Payment.RatePerSecond,
	}, config.NewLogger("payment"))

	svc := transport.NewService(nc, engine, directory, notifier, payments,
		transport.Config{Prefix: cfg.NATS.Prefix}, config.NewLogger("transport"))
	if err := svc.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start transport service")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")
		svc.Stop()
		if err := nc.Drain(); err != nil {
			logger.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
		if ns != nil {
			ns.Shutdown()
		}
		return nil
	})

	logger.Info().Str("nats_url", natsURL).Str("prefix", cfg.NATS.Prefix).Msg("Mesh registry running")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Shutdown error")
	}
}

// embeddedServerOptions derives the embedded server's listen address from
// the configured NATS URL, so clients pointed at that URL reach the
// in-process server. Host and port fall back to the NATS defaults when the
// URL omits them.
func embeddedServerOptions(rawURL string) (*server.Options, error) {
	opts := &server.Options{Host: "127.0.0.1", Port: 4222}
	if rawURL == "" {
		return opts, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse nats url %q: %w", rawURL, err)
	}
	if h := u.Hostname(); h != "" {
		opts.Host = h
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse nats url %q: %w", rawURL, err)
		}
		opts.Port = port
	}
	return opts, nil
}
