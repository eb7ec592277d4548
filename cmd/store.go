package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ems-pipeline/internal/retry"
	"github.com/sells-group/ems-pipeline/internal/store"
)

// initStore opens the configured warehouse backend, retrying transient
// connection failures so a briefly unavailable database doesn't fail the
// whole run.
func initStore(ctx context.Context) (store.Store, error) {
	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("store connection failed, retrying",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return retry.Do(ctx, retryCfg, func(ctx context.Context) (store.Store, error) {
		switch cfg.Store.Driver {
		case "sqlite":
			return store.NewSQLite(cfg.Store.SQLitePath)
		case "postgres":
			return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		default:
			return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
		}
	})
}
