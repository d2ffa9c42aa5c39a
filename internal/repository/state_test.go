package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepo(t *testing.T) (*RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStateRepository(client), mr
}

func TestRedisWakeRoundTrip(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.PushWake(ctx, 42))
	require.NoError(t, repo.PushWake(ctx, 43))

	id, ok, err := repo.PopWake(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	id, ok, err = repo.PopWake(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(43), id)
}

func TestRedisPopWakeTimeout(t *testing.T) {
	repo, _ := newTestRedisRepo(t)

	start := time.Now()
	_, ok, err := repo.PopWake(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRedisDeadLetter(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.PushDeadLetter(ctx, []byte(`{"job_id":7}`)))

	got, err := mr.List(deadLetterKey)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"job_id":7}`, got[0])
}

func TestRedisIncrWindowSetsTTLOnce(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()

	count, err := repo.IncrWindow(ctx, "likes:main", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Hour, mr.TTL(counterPrefix+"likes:main"))

	count, err = repo.IncrWindow(ctx, "likes:main", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryWakeRoundTrip(t *testing.T) {
	repo := NewMemoryStateRepository(4)
	ctx := context.Background()

	require.NoError(t, repo.PushWake(ctx, 7))

	id, ok, err := repo.PopWake(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok, err = repo.PopWake(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryWakeFullQueueDropsSignal(t *testing.T) {
	repo := NewMemoryStateRepository(1)
	ctx := context.Background()

	require.NoError(t, repo.PushWake(ctx, 1))
	// The signal is advisory; a full queue must not block the caller.
	require.NoError(t, repo.PushWake(ctx, 2))

	id, ok, err := repo.PopWake(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestMemoryIncrWindowExpires(t *testing.T) {
	repo := NewMemoryStateRepository(1)
	ctx := context.Background()

	count, err := repo.IncrWindow(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.IncrWindow(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	time.Sleep(20 * time.Millisecond)

	count, err = repo.IncrWindow(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// failingState always errors, standing in for a dead Redis.
type failingState struct{}

func (failingState) PushWake(context.Context, int64) error { return errors.New("connection refused") }
func (failingState) PopWake(context.Context, time.Duration) (int64, bool, error) {
	return 0, false, errors.New("connection refused")
}
func (failingState) PushDeadLetter(context.Context, []byte) error {
	return errors.New("connection refused")
}
func (failingState) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestFailoverFallsBackToMemory(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	fallback := NewMemoryStateRepository(4)
	repo := NewFailoverStateRepository(failingState{}, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.PushWake(ctx, 99))

	id, ok, err := repo.PopWake(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(99), id)
}

func TestFailoverStopsProbingAfterFailure(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	fallback := NewMemoryStateRepository(4)
	repo := NewFailoverStateRepository(failingState{}, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.PushWake(ctx, 1))
	assert.True(t, repo.isDown.Load())

	// Within the cooldown the primary is skipped entirely; the call still
	// succeeds through the fallback.
	require.NoError(t, repo.PushDeadLetter(ctx, []byte("x")))
	assert.Len(t, fallback.DeadLetters(), 1)
}

func TestFailoverRecovery(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	primary := NewMemoryStateRepository(4)
	fallback := NewMemoryStateRepository(4)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	// Force the down state, then age the last check past the probe
	// interval so the next call is routed to the (healthy) primary.
	repo.isDown.Store(true)
	repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	require.NoError(t, repo.PushWake(ctx, 5))
	assert.False(t, repo.isDown.Load())

	id, ok, err := primary.PopWake(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
}
