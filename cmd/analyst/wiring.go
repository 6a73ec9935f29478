package main

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/analyst/config"
	"github.com/mohammad-safakhou/analyst/internal/agent"
	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
	"github.com/mohammad-safakhou/analyst/internal/dataset"
)

func loadCatalog(cfg *config.Config) (*capability.Catalog, error) {
	if cfg.Agents.CatalogFile == "" {
		return capability.NewDefaultCatalog(), nil
	}
	c, err := capability.LoadFile(cfg.Agents.CatalogFile, cfg.Agents.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

func newRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Addr(), err)
	}
	return rdb, nil
}

// newServices builds one completion service per stage sharing the limiter
// and, when configured, the Redis cache.
func newServices(cfg *config.Config, rdb *redis.Client) (agent.Services, error) {
	opts := completion.Options{
		CacheTTL: cfg.LLM.CacheTTL,
		Limiter:  completion.NewLimiter(cfg.LLM.RateLimit),
		Logger:   log.New(log.Writer(), "[COMPLETION] ", log.LstdFlags),
	}
	if rdb != nil {
		opts.Redis = rdb
	}
	var s agent.Services
	var err error
	if s.Planning, err = completion.ForStage(cfg.LLM, completion.StagePlanning, opts); err != nil {
		return s, err
	}
	if s.Agents, err = completion.ForStage(cfg.LLM, completion.StageAgents, opts); err != nil {
		return s, err
	}
	if s.Combining, err = completion.ForStage(cfg.LLM, completion.StageCombining, opts); err != nil {
		return s, err
	}
	return s, nil
}

func newBlobs(ctx context.Context, cfg config.StorageConfig) (dataset.Blobs, error) {
	if cfg.S3.Enabled() {
		return dataset.NewS3Blobs(ctx, cfg.S3)
	}
	return dataset.NewDirBlobs(cfg.Files.DataDir)
}
