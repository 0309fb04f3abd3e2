// Package cache connects the optional Redis instance that shares the upstream request budget across replicas.
package cache

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr            string
	Username        string
	Password        string
	DB              int
	UseTLS          bool
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MaxRetries      int           // command retries, -1 disables
	ConnectAttempts uint64        // PING attempts before giving up, default 5
	ConnectBackoff  time.Duration // initial interval between PING attempts, default 200ms
}

// New returns a connected client and a closer. Connectivity is verified with PING,
// retried with exponential backoff while Redis is still starting.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*redis.Client, func(), error) {
	opts := &redis.Options{
		Addr:            cfg.Addr,
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     defaultDuration(cfg.DialTimeout, 3*time.Second),
		ReadTimeout:     defaultDuration(cfg.ReadTimeout, 2*time.Second),
		WriteTimeout:    defaultDuration(cfg.WriteTimeout, 2*time.Second),
		PoolSize:        defaultInt(cfg.PoolSize, 10),
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries // -1 disables retries
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = defaultDuration(cfg.ConnectBackoff, 200*time.Millisecond)
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, attempts-1), ctx)

	ping := func() error {
		err := client.Ping(ctx).Err()
		if err != nil {
			logger.Warn("redis_ping_failed", zap.String("addr", cfg.Addr), zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(ping, policy); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("redis_connected", zap.String("addr", cfg.Addr))

	closer := func() {
		_ = client.Close()
	}
	return client, closer, nil
}

func defaultDuration(v, d time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return d
}

func defaultInt(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}
