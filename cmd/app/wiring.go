package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rps_wager/internal/config"
	"rps_wager/internal/db"
	"rps_wager/internal/events"
	"rps_wager/internal/logger"
	"rps_wager/internal/repository"
	"rps_wager/internal/scheduler"
	"rps_wager/internal/service"
)

// openStore builds the Store selected by STORE.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return repository.NewPostgresStore(db.Connect(cfg.DatabaseURL)), nil
	case config.StoreRedis:
		rc := repository.DefaultRedisConfig()
		rc.Addr, rc.Password, rc.DB = cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB
		return repository.NewRedisStore(rc)
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// openRedis returns nil when REDIS_ADDR is unset.
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func engineOptions(cfg *config.Config) service.Options {
	return service.Options{
		InitialCoins:      cfg.InitialCoins,
		MinStake:          cfg.MinStake,
		MaxStake:          cfg.MaxStake,
		MoveTimeout:       cfg.MoveTimeout,
		StaleWaiting:      cfg.StaleWaiting,
		FinishedRetention: cfg.FinishedRetention,
		AutoMovePayout:    service.PayoutPolicy(cfg.AutoMovePayout),
	}
}

func newEngine(store repository.Store, timers *scheduler.Timers, pub events.Publisher, cfg *config.Config) *service.MatchService {
	return service.NewMatchService(service.Deps{
		Store:     store,
		Timers:    timers,
		Publisher: pub,
		Logger:    logger.Component("engine"),
	}, engineOptions(cfg))
}
