package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ferdifleet/console/core/apiclient"
	"github.com/ferdifleet/console/core/config"
	"github.com/ferdifleet/console/core/cookie"
	"github.com/ferdifleet/console/core/monitor"
	"github.com/ferdifleet/console/core/proxy"
	"github.com/ferdifleet/console/core/server"
	"github.com/ferdifleet/console/core/session"
	"github.com/ferdifleet/console/pkg/logger"
)

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	logOpts := []logger.Option{logger.WithAppName(cfg.AppName)}
	if cfg.Debug {
		logOpts = append(logOpts, logger.WithLevel(slog.LevelDebug))
	}
	if cfg.LogJSON {
		logOpts = append(logOpts, logger.WithJSON())
	}
	log := logger.New(logOpts...)

	if err := run(cfg, log); err != nil {
		log.Error("console gateway exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg appConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// The unauthorized hook closes over mgr because the client must exist
	// before the manager that uses it.
	var mgr *session.Manager
	api, err := apiclient.New(cfg.Backend,
		apiclient.WithLogger(log),
		apiclient.WithUnauthorizedHook(func(ctx context.Context) {
			if mgr != nil {
				_ = mgr.Logout(ctx, session.ReasonUnauthorized)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}

	mgr = session.NewManagerFromConfig(cfg.Session, store, api, session.WithLogger(log))
	if err := mgr.Restore(ctx); err != nil {
		log.Warn("could not restore persisted session", logger.Error(err))
	}

	mon := monitor.New(cfg.Monitor, mgr, monitor.WithLogger(log))

	cookies, err := cookie.NewFromConfig(cfg.Cookie)
	if err != nil {
		return fmt.Errorf("cookie manager: %w", err)
	}

	backendURL, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend base url: %w", err)
	}
	apiProxy := proxy.New(backendURL,
		proxy.WithTokenEndpoint(cfg.Backend.TokenPath),
		proxy.WithTokenSource(mgr.Token),
		proxy.WithUnauthorizedHook(func(ctx context.Context) {
			_ = mgr.Logout(ctx, session.ReasonUnauthorized)
		}),
		proxy.WithLogger(log),
	)

	a := &app{
		log:        log,
		sessions:   mgr,
		monitor:    mon,
		cookies:    cookies,
		cookieName: cfg.Cookie.Name,
		mockData:   cfg.MockData,
	}

	srv, err := server.NewFromConfig(cfg.Server, server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Run(ctx, a.routes(apiProxy)))
	g.Go(func() error {
		return mon.Run(ctx)
	})

	log.Info("console gateway started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("backend", cfg.Backend.BaseURL),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSessionStore picks Redis persistence when configured, otherwise the
// in-memory store. The returned close function is a no-op for memory.
func newSessionStore(ctx context.Context, cfg appConfig, log *slog.Logger) (session.Store, func(), error) {
	if cfg.RedisURL == "" {
		return session.NewMemoryStore(), func() {}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("session persistence enabled", logger.Component("redis"))
	return session.NewRedisStore(client), func() { _ = client.Close() }, nil
}
