package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibast-solutions/ms-go-identity/app/ratelimit"
)

func expectHit(mock redismock.ClientMock, key string, count int64) {
	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(count)
	mock.ExpectExpireNX(key, time.Minute).SetVal(count == 1)
	mock.ExpectTxPipelineExec()
}

func TestRedisLimiter_FirstHitSetsWindow(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := ratelimit.NewRedisLimiter(client, "login", 2, time.Minute)

	expectHit(mock, "login:user@example.com", 1)

	allowed, err := limiter.Allow(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_BlocksOverLimit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := ratelimit.NewRedisLimiter(client, "login", 2, time.Minute)

	expectHit(mock, "login:user@example.com", 2)
	expectHit(mock, "login:user@example.com", 3)

	allowed, err := limiter.Allow(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_ExpireFailureRetriedOnNextHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := ratelimit.NewRedisLimiter(client, "login", 2, time.Minute)
	key := "login:user@example.com"

	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpireNX(key, time.Minute).SetErr(errors.New("i/o timeout"))

	// the key has no TTL yet, so the next hit's EXPIRE NX applies one
	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectExpireNX(key, time.Minute).SetVal(true)
	mock.ExpectTxPipelineExec()

	expectHit(mock, key, 3)

	allowed, err := limiter.Allow(context.Background(), "user@example.com")
	assert.Error(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := ratelimit.NewRedisLimiter(client, "reset", 1, time.Minute)

	mock.ExpectTxPipeline()
	mock.ExpectIncr("reset:user@example.com").SetErr(errors.New("connection refused"))

	allowed, err := limiter.Allow(context.Background(), "user@example.com")
	assert.Error(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_ZeroLimitDisables(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := ratelimit.NewRedisLimiter(client, "login", 0, time.Minute)

	allowed, err := limiter.Allow(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoopLimiter(t *testing.T) {
	allowed, err := ratelimit.NoopLimiter{}.Allow(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, allowed)
}
