// Command server runs the Texas Hold'Em room server: it loads the
// pre-seeded room table, wires the identity/balance adapters, and serves
// the websocket event protocol until signalled to shut down.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/holdemd/internal/auth"
	"github.com/lox/holdemd/internal/config"
	"github.com/lox/holdemd/internal/room"
	"github.com/lox/holdemd/internal/transport"
)

// CLI is parsed by kong; every flag except --seed falls back to the
// matching environment variable so the server can be configured purely
// through env in a container.
type CLI struct {
	ConfigFile string `kong:"name='config',default='rooms.hcl',env='POKER_CONFIG',help='Path to the pre-seeded room config (HCL)'"`
	Addr       string `kong:"env='POKER_ADDR',help='Override listen address (host:port); defaults to the config file'"`
	LogLevel   string `kong:"default='info',env='LOG_LEVEL',help='Log level: debug, info, warn, error'"`
	DatabaseURL string `kong:"env='DATABASE_URL',help='Identity/balance service base URL; empty runs with an in-memory adapter'"`
	AuthURL     string `kong:"env='AUTH_URL',help='Identity service base URL for session resolution; empty accepts any token (dev mode)'"`
	AdminSecret string `kong:"env='ADMIN_SECRET',help='Shared secret sent to the identity/balance service'"`
	Seed        *int64 `kong:"help='Deterministic RNG seed for room shuffles (testing only)'"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("poker-server"),
		kong.Description("Texas Hold'Em room server"),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level, err := zerolog.ParseLevel(cli.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		logger.Error().Err(err).Str("file", cli.ConfigFile).Msg("failed to load room config")
		return 1
	}
	if cli.DatabaseURL != "" {
		cfg.Server.BalanceURL = cli.DatabaseURL
	}
	if cli.AuthURL != "" {
		cfg.Server.AuthURL = cli.AuthURL
	}
	if cli.AdminSecret != "" {
		cfg.Server.AdminSecret = cli.AdminSecret
	}
	if cli.Addr != "" {
		host, portStr, err := net.SplitHostPort(cli.Addr)
		if err != nil {
			logger.Error().Err(err).Str("addr", cli.Addr).Msg("invalid --addr")
			return 1
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logger.Error().Err(err).Str("addr", cli.Addr).Msg("invalid port in --addr")
			return 1
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid room config")
		return 1
	}

	var resolver auth.SessionResolver
	if cfg.Server.AuthURL != "" {
		resolver = auth.NewHTTPIdentityClient(cfg.Server.AuthURL, cfg.Server.AdminSecret)
	} else {
		logger.Warn().Msg("AUTH_URL not set, accepting any session token (dev mode)")
		resolver = auth.NewDevSessionResolver()
	}

	var balance auth.BalanceAdapter
	if cfg.Server.BalanceURL != "" {
		balance = auth.NewRetryingBalanceAdapter(
			auth.NewHTTPIdentityClient(cfg.Server.BalanceURL, cfg.Server.AdminSecret),
			3, 500*time.Millisecond, logger)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, running with in-memory balance adapter")
		balance = auth.NewInMemoryBalanceAdapter()
	}

	seed := time.Now().UnixNano()
	if cli.Seed != nil {
		seed = *cli.Seed
	}
	clock := quartz.NewReal()

	registry := room.NewRegistry(cfg, balance, clock, seed, logger)
	srv := transport.New(registry, resolver, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := cfg.Address()
	logger.Info().
		Str("addr", addr).
		Int("rooms", len(cfg.Rooms)).
		Int64("seed", seed).
		Str("auth_url", cfg.Server.AuthURL).
		Msg("poker server starting")

	if err := srv.Run(ctx, addr); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return 1
	}

	logger.Info().Msg("server shutdown complete")
	return 0
}
