package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultMinJitter      = 100 * time.Millisecond
	defaultMaxJitter      = 1 * time.Second
)

// NewRedisClient dials the cache with bounded retries. Each failed attempt
// waits factor^attempt * minJitter (capped) plus random jitter before the
// next dial.
func NewRedisClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("cache dsn is required")
	}

	options, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse cache dsn: %w", err)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	maxRetry := cfg.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}

	backoffFactor := cfg.ReconnectFactor
	if backoffFactor < 1 {
		backoffFactor = defaultBackoffFactor
	}

	minJitter := cfg.MinJitter
	if minJitter <= 0 {
		minJitter = defaultMinJitter
	}

	maxJitter := cfg.MaxJitter
	if maxJitter <= 0 {
		maxJitter = defaultMaxJitter
	}
	if maxJitter < minJitter {
		maxJitter = minJitter
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	client := redis.NewClient(options)

	var lastErr error
	for attempt := 0; attempt <= maxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := client.Ping(attemptCtx).Err()
		cancel()
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"addr":      options.Addr,
				"max_retry": maxRetry,
			}).Info("redis connection established")

			return client, nil
		}

		lastErr = err
		if attempt == maxRetry {
			break
		}

		waitDuration := backoffWithJitter(attempt, backoffFactor, minJitter, maxJitter, rng)
		logrus.WithFields(logrus.Fields{
			"attempt":   attempt + 1,
			"max_retry": maxRetry,
			"retry_in":  waitDuration.String(),
			"addr":      options.Addr,
		}).Warnf("redis connection failed: %v", err)

		select {
		case <-time.After(waitDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	_ = client.Close()

	return nil, fmt.Errorf("connect redis after %d attempts: %w", maxRetry+1, lastErr)
}

func backoffWithJitter(attempt int, factor float64, min, max time.Duration, rng *rand.Rand) time.Duration {
	backoff := float64(min) * math.Pow(factor, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}

	base := time.Duration(backoff)
	if max <= min {
		return base
	}

	jitterWindow := max - min
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > max {
		return max
	}

	return result
}
