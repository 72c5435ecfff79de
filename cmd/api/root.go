package main

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cragdb/api/internal/cache"
	"cragdb/api/internal/config"
	"cragdb/api/internal/logging"
	"cragdb/api/internal/search"
	"cragdb/api/internal/store"
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	cmd := &cobra.Command{
		Use:           "cragdb-api",
		Short:         "Climbing crag catalogue API",
		SilenceUsage:  true,
		RunE:          serve.RunE,
	}
	cmd.AddCommand(serve, newMigrateCmd(), newReindexCmd(), newTokenCmd())
	return cmd
}

// env is what every subcommand starts from.
type env struct {
	cfg config.Config
	log *logrus.Entry
	db  *sql.DB
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logrus.NewEntry(logging.New(cfg.LogLevel, cfg.LogFormat))
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) Close() {
	_ = e.db.Close()
}

// queryCache connects to Redis. The API keeps working without it.
func (e *env) queryCache() (cache.Cache, func()) {
	if strings.TrimSpace(e.cfg.RedisURL) == "" {
		return cache.Nop{}, func() {}
	}
	redisCache, err := cache.NewRedisCache(e.cfg.RedisURL, e.cfg.CacheTTL)
	if err != nil {
		e.log.WithError(err).Warn("redis unavailable, query cache disabled")
		return cache.Nop{}, func() {}
	}
	return redisCache, func() { _ = redisCache.Close() }
}

// searchService wires Meilisearch when configured, with Postgres full-text
// search as fallback and record loader.
func (e *env) searchService() (*search.Service, func()) {
	pgfts := search.NewPgFTS(e.db)
	if strings.TrimSpace(e.cfg.MeiliURL) == "" {
		return search.NewService(nil, pgfts, pgfts, e.log), func() {}
	}
	meili := search.NewMeili(e.cfg.MeiliURL, e.cfg.MeiliMasterKey, e.log)
	return search.NewService(meili, pgfts, pgfts, e.log), meili.Close
}
