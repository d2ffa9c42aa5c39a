package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryStateRepository is the in-process fallback used when Redis is
// absent or down. Wake signals degrade to a bounded channel; dead letters
// and counters live in maps.
type MemoryStateRepository struct {
	wake chan int64

	mu          sync.Mutex
	deadLetters [][]byte
	counters    map[string]*counterEntry
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStateRepository(queueSize int) *MemoryStateRepository {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &MemoryStateRepository{
		wake:     make(chan int64, queueSize),
		counters: make(map[string]*counterEntry),
	}
}

func (r *MemoryStateRepository) PushWake(ctx context.Context, jobID int64) error {
	select {
	case r.wake <- jobID:
	default:
		// Queue full: workers fall back to DB polling, the signal is
		// only an optimization.
	}
	return nil
}

func (r *MemoryStateRepository) PopWake(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id := <-r.wake:
		return id, true, nil
	case <-timer.C:
		return 0, false, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

func (r *MemoryStateRepository) PushDeadLetter(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadLetters = append(r.deadLetters, payload)
	return nil
}

// DeadLetters returns a copy of the accumulated dead letters.
func (r *MemoryStateRepository) DeadLetters() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.deadLetters))
	copy(out, r.deadLetters)
	return out
}

func (r *MemoryStateRepository) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.counters[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &counterEntry{count: 0, expiresAt: now.Add(window)}
		r.counters[key] = entry
	}
	entry.count++
	return entry.count, nil
}
