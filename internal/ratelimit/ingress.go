// Package ratelimit provides an optional redis backed ingress limiter that
// smooths bursts in front of the quota layer. Quota enforcement stays
// authoritative; this only protects the gateway itself.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/optimosight/vto-gateway/internal/config"
)

const keyIngressCaller = "ingress:caller:%s"

// IngressLimiter rate limits proxied calls per caller. A nil limiter is
// valid and always allows, so deployments without redis run unchanged.
type IngressLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewIngressLimiter(cfg config.Config) (*IngressLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("rate limit rate and burst must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngressLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.Rate,
		burst:   limitCfg.Burst,
	}, nil
}

func (l *IngressLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowCaller consumes one token for the caller bucket. callerKey is any
// stable identifier: org id, guest fingerprint, or the super admin marker.
func (l *IngressLimiter) AllowCaller(ctx context.Context, callerKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIngressCaller, strings.TrimSpace(callerKey))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewIngressLimiter),
)
