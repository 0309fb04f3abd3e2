package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pacer suspends the caller between two upstream requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// DelayPacer waits a fixed delay between pages.
type DelayPacer struct {
	Delay time.Duration
}

func (p DelayPacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ChainPacer runs each pacer in order.
type ChainPacer []Pacer

func (c ChainPacer) Wait(ctx context.Context) error {
	for _, p := range c {
		if p == nil {
			continue
		}
		if err := p.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RequestBudget caps the request rate against the commerce API for the whole process
// and, when a Redis client is supplied, across every replica sharing the same key.
type RequestBudget struct {
	localLimiter *rate.Limiter
	redisClient  *redis.Client
	key          string        // e.g: "woo:orders:budget"
	window       time.Duration // fixed counter window
	perWindow    int64
	logger       *zap.Logger
	now          func() time.Time
}

// NewRequestBudget creates a budget; if ratePerSec=0, it's unlimited. redisClient may be nil.
func NewRequestBudget(redisClient *redis.Client, key string, ratePerSec, burst int, window time.Duration, logger *zap.Logger) *RequestBudget {
	var local *rate.Limiter
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		local = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	if window <= 0 {
		window = time.Second
	}
	perWindow := int64(float64(ratePerSec) * window.Seconds())
	if perWindow < 1 {
		perWindow = 1
	}
	return &RequestBudget{
		localLimiter: local,
		redisClient:  redisClient,
		key:          key,
		window:       window,
		perWindow:    perWindow,
		logger:       logger,
		now:          time.Now,
	}
}

// Wait blocks until both the local token bucket and the shared counter admit one request.
func (b *RequestBudget) Wait(ctx context.Context) error {
	if b == nil || b.localLimiter == nil {
		return ctx.Err() // Unlimited
	}
	if err := b.localLimiter.Wait(ctx); err != nil {
		return err
	}
	if b.redisClient == nil {
		return nil
	}

	for attempt := 1; ; attempt++ {
		if b.allowShared(ctx) {
			return nil
		}
		delay := utils.CalculateExponentialBackoffWithJitter(attempt, 50*time.Millisecond, b.window)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// allowShared increments the counter of the current window in Redis.
func (b *RequestBudget) allowShared(ctx context.Context) bool {
	slot := b.now().UnixNano() / int64(b.window)
	key := fmt.Sprintf("%s:%d", b.key, slot)

	pipe := b.redisClient.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*b.window)
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("redis request budget error; falling back to local", zap.Error(err))
		return true
	}

	if count := incr.Val(); count > b.perWindow {
		b.logger.Warn("global request budget exhausted", zap.String("key", key), zap.Int64("count", count))
		return false
	}
	return true
}
