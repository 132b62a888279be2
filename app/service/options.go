package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-identity/app/ratelimit"
)

type AsyncRunner func(task func())

type Clock func() time.Time

type Option func(*options)

type options struct {
	clock       Clock
	asyncRunner AsyncRunner
	limiter     ratelimit.Limiter
}

func defaultOptions() options {
	return options{
		clock: func() time.Time { return time.Now().UTC() },
		asyncRunner: func(task func()) {
			go task()
		},
		limiter: ratelimit.NoopLimiter{},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func WithAsyncRunner(runner AsyncRunner) Option {
	return func(o *options) {
		if runner != nil {
			o.asyncRunner = runner
		}
	}
}

func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(o *options) {
		if limiter != nil {
			o.limiter = limiter
		}
	}
}

// allow fails open: a broken limiter backend must not lock everyone out.
func (o *options) allow(ctx context.Context, key string) bool {
	allowed, err := o.limiter.Allow(ctx, key)
	if err != nil {
		logrus.WithError(err).Warn("Rate limiter unavailable, allowing request")
		return true
	}
	return allowed
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
