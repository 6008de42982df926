package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/config"
	"jwtpizza.org/internal/grpcapi"
	"jwtpizza.org/internal/httpapi"
	"jwtpizza.org/internal/migrate"
	"jwtpizza.org/internal/obs"
	"jwtpizza.org/internal/pizza"
	"jwtpizza.org/internal/store/memory"
	"jwtpizza.org/internal/store/pg"
	"jwtpizza.org/internal/store/redisstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("jwt-pizza service stopped")
		os.Exit(1)
	}
	logger.Info().Msg("stopped")
}

// backends holds the storage chosen by configuration.
type backends struct {
	users       auth.UserStore
	pizza       pizza.Repository
	revocations auth.RevocationStore
	ready       httpapi.ReadyProbe
	closers     []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{}
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, store.Close)
		if cfg.RunMigrationsOnStart {
			if err := runMigrations(ctx, store.DB()); err != nil {
				b.close()
				return nil, err
			}
			logger.Info().Msg("migrations applied")
		}
		b.users = store
		b.pizza = store.Pizza()
		b.revocations = store.Revocations()
		b.ready.DB = store.DB()
	default:
		b.users = memory.NewUsers()
		b.pizza = memory.NewPizza(pizza.DefaultMenu()...)
		b.revocations = memory.NewRevocations()
		logger.Warn().Msg("using in-memory storage; state is lost on restart")
	}

	if cfg.LedgerDriver == config.LedgerRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, client.Close)
		rev := redisstore.NewRevocations(client, cfg.Redis.Prefix)
		b.revocations = rev
		b.ready.Redis = rev
	}
	return b, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	migrations, seeds := migrate.Embedded()
	mgr := migrate.NewManager(db, migrations, seeds)
	if err := mgr.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if err := mgr.Seed(ctx); err != nil {
		return fmt.Errorf("migrate seed: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	metrics := obs.NewMetrics()
	metrics.SetBuildInfo(version, commit)
	if b.ready.DB != nil {
		metrics.Registry().MustRegister(collectors.NewDBStatsCollector(b.ready.DB, "pizza"))
	}

	codec, err := auth.NewCodec(cfg.Auth.Secret, cfg.Auth.TokenTTL, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	ledger := auth.NewLedger(b.revocations)
	policy := auth.NewPolicy(auth.WithFranchiseeScope(cfg.Auth.FranchiseeScope))
	sessions, err := auth.NewSessions(b.users, codec, ledger,
		auth.WithHasher(auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}),
		auth.WithPolicy(policy),
	)
	if err != nil {
		return err
	}
	if cfg.Auth.BootstrapAdminEmail != "" {
		admin, err := sessions.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		logger.Info().Str("user_id", admin.ID).Str("email", admin.Email).Msg("bootstrap admin ready")
	}

	svc, err := pizza.NewService(b.pizza, b.users, policy)
	if err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Options{
		Sessions:      sessions,
		Pizza:         svc,
		Metrics:       metrics,
		Logger:        logger,
		Ready:         b.ready,
		Version:       version,
		RateBurst:     cfg.RateLimitBurst,
		RatePerSecond: cfg.RateLimitPerSecond,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	errCh := make(chan error, 2)
	go ledger.RunCompaction(ctx, cfg.Auth.CompactInterval, logger)

	go func() {
		logger.Info().Str("addr", httpLis.Addr().String()).Str("version", version).Msg("http listening")
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var stopGRPC func()
	if grpcLis != nil {
		health := grpcapi.NewHealth(b.ready, 5*time.Second, logger)
		grpcSrv := grpcapi.NewServer(logger)
		health.Register(grpcSrv)
		go health.Run(ctx)
		go func() {
			logger.Info().Str("addr", grpcLis.Addr().String()).Msg("grpc listening")
			if err := grpcSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
		stopGRPC = grpcSrv.GracefulStop
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed; shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopGRPC != nil {
		stopGRPC()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
