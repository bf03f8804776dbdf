package app

import (
	"context"

	"github.com/kraemahz/subseq-util/internal/config"
	"github.com/kraemahz/subseq-util/internal/db"
	"github.com/kraemahz/subseq-util/internal/logger"
	"github.com/kraemahz/subseq-util/internal/redis"
)

type Infra struct {
	Pool  *db.Pool
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	pool, err := db.Open(ctx, db.Config{
		DSN:            cfg.DatabaseDSN,
		MaxConns:       cfg.DBPoolSize,
		AcquireTimeout: cfg.DBAcquireTimeout,
		IdleTimeout:    cfg.DBIdleTimeout,
		Abort:          cfg.DBFailureMode == config.FailureModeAbort,
	})
	if err != nil {
		return nil, err
	}

	if err := pool.RunMigrations(); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("database ready", nil)

	infra := &Infra{Pool: pool}

	if cfg.SessionBackend == config.SessionBackendRedis {
		redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("redis ready", nil)
		infra.Redis = redisClient
	}

	return infra, nil
}

func (i *Infra) Close() error {
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	return i.Pool.Close()
}
