package service

import (
	"context"
	"errors"

	"loyaltybot/internal/database"
	"loyaltybot/internal/domain"
	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	directory domain.UserDirectory
	local     domain.LocalStore
	bossID    int64
	logger    *zerolog.Logger
}

func NewUserService(directory domain.UserDirectory, local domain.LocalStore, bossID int64, logger *zerolog.Logger) *UserService {
	return &UserService{
		directory: directory,
		local:     local,
		bossID:    bossID,
		logger:    logger,
	}
}

// IsReviewer reports whether the chat belongs to the boss.
func (s *UserService) IsReviewer(chatID int64) bool {
	return s.bossID != 0 && chatID == s.bossID
}

// Resolve returns the initiator fields for a registered chat, or nil when registration is needed.
// The sheet decides first. A complete local users row stands in while the sheet cannot be reached
// or has no row for the chat yet, since registration reaches the sheet only with the first application.
func (s *UserService) Resolve(ctx context.Context, chatID int64) (*models.User, error) {
	registered, err := s.directory.IsRegistered(ctx, chatID)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("remote registration lookup failed, using local store")
	case registered:
		u, err := s.directory.GetInitiator(ctx, chatID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("remote initiator lookup failed, using local store")
		} else if u != nil {
			return u, nil
		}
	}

	u, err := s.local.GetUser(ctx, chatID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !u.Complete() {
		return nil, nil
	}
	return u, nil
}

// Register stores a freshly collected user locally. The sheet learns about the user with the first application.
func (s *UserService) Register(ctx context.Context, u *models.User) error {
	if err := s.local.UpsertUser(ctx, u); err != nil {
		return err
	}
	if err := s.local.LogActivity(ctx, u.TelegramID, models.EventRegistered); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", u.TelegramID).Msg("failed to log registration")
	}
	return nil
}

// Touch bumps last activity. Unknown chats are ignored.
func (s *UserService) Touch(ctx context.Context, chatID int64) {
	if err := s.local.UpdateActivity(ctx, chatID); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to update activity")
	}
}
