package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"loyaltybot/internal/domain"
	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
)

// retryPrimaryAfter is how long reads stay on the fallback before probing the primary again.
const retryPrimaryAfter = time.Minute

// FailoverStateRepository uses Redis while it answers and switches to memory when it does not.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error, op string) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary is true while the primary is healthy, and once per retryPrimaryAfter while it is down.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) <= retryPrimaryAfter {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

func (r *FailoverStateRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}

// GetState prefers the primary. A dialog started while the primary was down lives only in the
// fallback, so a miss on the primary is answered from there.
func (r *FailoverStateRepository) GetState(ctx context.Context, chatID int64) (*models.Scratchpad, error) {
	if r.usePrimary() {
		pad, err := r.primary.GetState(ctx, chatID)
		if err == nil {
			r.recovered()
			if pad != nil {
				return pad, nil
			}
		} else {
			r.markDown(err, "get")
		}
	}

	return r.fallback.GetState(ctx, chatID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, pad *models.Scratchpad) error {
	if r.usePrimary() {
		err := r.primary.SetState(ctx, pad)
		if err == nil {
			r.recovered()
			// drop the stale outage copy so it cannot shadow a later primary miss
			_ = r.fallback.ClearState(ctx, pad.ChatID)
			return nil
		}
		r.markDown(err, "set")
	}

	return r.fallback.SetState(ctx, pad)
}

// ClearState always clears the fallback too: the dialog may have been saved there during an outage.
func (r *FailoverStateRepository) ClearState(ctx context.Context, chatID int64) error {
	if r.usePrimary() {
		if err := r.primary.ClearState(ctx, chatID); err != nil {
			r.markDown(err, "clear")
		} else {
			r.recovered()
		}
	}

	return r.fallback.ClearState(ctx, chatID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, chatID, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err, "rate_limit")
	}

	return r.fallback.CheckRateLimit(ctx, chatID, limit, window)
}
