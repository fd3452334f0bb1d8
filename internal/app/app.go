package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/wager-quiz/internal/auth/jwt"
	"github.com/gokatarajesh/wager-quiz/internal/config"
	"github.com/gokatarajesh/wager-quiz/internal/logging"
	"github.com/gokatarajesh/wager-quiz/internal/question"
	"github.com/gokatarajesh/wager-quiz/internal/question/ai"
	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
	"github.com/gokatarajesh/wager-quiz/internal/server"
	ws "github.com/gokatarajesh/wager-quiz/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server, feed broadcaster).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	broadcaster *server.Broadcaster
}

// New bootstraps the logger, Postgres, Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("%s pool_max_conns=%d", cfg.Postgres.DSN(), cfg.Postgres.MaxConns)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	notifier := roomstore.NewNotifier(redisClient, logger)
	store := roomstore.NewPostgresStore(pool, notifier, logger)

	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		TTL:    cfg.Security.TokenTTL,
		Issuer: cfg.Name,
	})

	generator := ai.NewGenerator(ai.Config{
		BaseURL:        cfg.Provider.BaseURL,
		Model:          cfg.Provider.Model,
		Timeout:        cfg.Provider.HTTPTimeout,
		MaxAttempts:    cfg.Provider.MaxAttempts,
		InitialBackoff: cfg.Provider.InitialBackoff,
		MaxBackoff:     cfg.Provider.MaxBackoff,
	}, logger)
	questionSvc := question.NewService(generator, question.NewCache(redisClient, cfg.Provider.CacheTTL), logger)

	hub := ws.NewHub(logger)
	apiServer := server.NewHTTPServer(cfg, server.Deps{
		Store:     store,
		Tokens:    tokens,
		Hub:       hub,
		Questions: questionSvc,
		Ping: func(ctx context.Context) error {
			return pingDependencies(ctx, pool, redisClient)
		},
	}, logger)

	return &Application{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redis:       redisClient,
		http:        apiServer,
		broadcaster: server.NewBroadcaster(redisClient, hub, logger),
	}, nil
}

// Run serves HTTP and the feed broadcaster until a termination signal, ctx
// cancellation or a worker failure, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.broadcaster.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("room broadcaster: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
		defer cancel()
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("http shutdown error")
		}
		return nil
	})

	err := g.Wait()

	a.pool.Close()
	if cerr := a.redis.Close(); cerr != nil {
		a.logger.Error().Err(cerr).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return err
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
