package service

import (
	"context"
	"time"

	"loyaltybot/internal/domain"
	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
)

type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// GetScratchpad returns the active dialog of the chat, or nil when it is idle.
func (s *StateService) GetScratchpad(ctx context.Context, chatID int64) (*models.Scratchpad, error) {
	pad, err := s.stateRepo.GetState(ctx, chatID)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to get scratchpad")
		return nil, err
	}
	return pad, nil
}

// SaveScratchpad stores the pad. Saving an idle pad clears it instead.
func (s *StateService) SaveScratchpad(ctx context.Context, pad *models.Scratchpad) error {
	if pad.Step == models.StepIdle {
		return s.ClearScratchpad(ctx, pad.ChatID)
	}
	pad.UpdatedAt = s.now()
	return s.stateRepo.SetState(ctx, pad)
}

func (s *StateService) ClearScratchpad(ctx context.Context, chatID int64) error {
	return s.stateRepo.ClearState(ctx, chatID)
}

func (s *StateService) CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	return s.stateRepo.CheckRateLimit(ctx, chatID, limit, window)
}
