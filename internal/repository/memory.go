package repository

import (
	"context"
	"sync"
	"time"

	"loyaltybot/internal/models"
)

type memoryEntry struct {
	pad       models.Scratchpad
	expiresAt time.Time
}

// MemoryStateRepository keeps scratchpads in process. Entries expire after ttl like the Redis keys do.
type MemoryStateRepository struct {
	mu         sync.Mutex
	states     map[int64]memoryEntry
	rateLimits sync.Map
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	if ttl <= 0 {
		ttl = models.DefaultStateTTL
	}
	return &MemoryStateRepository{
		states: make(map[int64]memoryEntry),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *MemoryStateRepository) GetState(_ context.Context, chatID int64) (*models.Scratchpad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.states[chatID]
	if !ok {
		return nil, nil
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.states, chatID)
		return nil, nil
	}
	pad := entry.pad
	return &pad, nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, pad *models.Scratchpad) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[pad.ChatID] = memoryEntry{pad: *pad, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, chatID)
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(chatID, &rateLimitEntry{})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 1
		entry.expiresAt = now.Add(window)
	} else {
		entry.count++
	}
	return entry.count <= limit, nil
}
