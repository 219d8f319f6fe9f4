package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/mlevchenko/url-alias/internal/cache"
	"github.com/mlevchenko/url-alias/internal/config"
	"github.com/mlevchenko/url-alias/internal/service"
	"github.com/mlevchenko/url-alias/internal/sweeper"
	"github.com/mlevchenko/url-alias/pkg/postgres"
	"golang.org/x/sync/errgroup"

	api "github.com/mlevchenko/url-alias/internal/api/http"
	pgrepo "github.com/mlevchenko/url-alias/internal/database/postgres"
)

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := httplog.NewLogger("url-alias", httplog.Options{
		LogLevel: slog.LevelInfo,
		Concise:  cfg.Env != config.EnvProd,
		JSON:     cfg.Env == config.EnvProd,
	})

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	redisCache, err := cache.New(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to cache: %w", op, err)
	}
	defer redisCache.Close()

	aliasRepo := pgrepo.NewAliasRepository(db)
	aliasSvc := service.NewAliasService(aliasRepo, redisCache, logger.Logger, cfg.Cache.TTL, cfg.Sweeper.StaleAfter)
	sw := sweeper.New(aliasSvc.SweepExpired, logger.Logger, cfg.Sweeper.Interval)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        api.NewRouter(logger, aliasSvc),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: sweeper error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
