package service

import (
	"context"
	"fmt"
	"log/slog"

	"clothshop/internal/auth"
	"clothshop/internal/db"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

type BanNotifier interface {
	UserBanned(ctx context.Context, userID int64) error
	UserUnbanned(ctx context.Context, userID int64) error
}

type ModerationService struct {
	users    *repo.UserRepo
	policy   *auth.Policy
	notifier BanNotifier
}

func NewModerationService(d *db.DB, policy *auth.Policy, notifier BanNotifier) *ModerationService {
	return &ModerationService{users: repo.NewUserRepo(d), policy: policy, notifier: notifier}
}

func (s *ModerationService) IsBanned(ctx context.Context, userID int64) (bool, error) {
	banned, err := s.users.IsBanned(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check ban of user %d: %w", userID, err)
	}
	return banned, nil
}

// Ban reports false when the user was already banned.
func (s *ModerationService) Ban(ctx context.Context, actor auth.Actor, userID int64) (bool, error) {
	if err := s.policy.CanManageBans(actor); err != nil {
		return false, fmt.Errorf("ban user %d: %w", userID, err)
	}
	if userID <= 0 {
		return false, validationf("invalid user id %d", userID)
	}

	banned, err := s.users.BanUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ban user %d: %w", userID, err)
	}
	if !banned {
		return false, nil
	}
	slog.Info("User banned", "user_id", userID, "actor", actor.UserID)

	if s.notifier != nil {
		if err := s.notifier.UserBanned(ctx, userID); err != nil {
			slog.Warn("Ban notification failed", "user_id", userID, "error", err)
		}
	}
	return true, nil
}

// Unban reports false when the user was not banned.
func (s *ModerationService) Unban(ctx context.Context, actor auth.Actor, userID int64) (bool, error) {
	if err := s.policy.CanManageBans(actor); err != nil {
		return false, fmt.Errorf("unban user %d: %w", userID, err)
	}

	removed, err := s.users.UnbanUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("unban user %d: %w", userID, err)
	}
	if !removed {
		return false, nil
	}
	slog.Info("User unbanned", "user_id", userID, "actor", actor.UserID)

	if s.notifier != nil {
		if err := s.notifier.UserUnbanned(ctx, userID); err != nil {
			slog.Warn("Unban notification failed", "user_id", userID, "error", err)
		}
	}
	return true, nil
}

func (s *ModerationService) ListBanned(ctx context.Context) ([]models.BannedUser, error) {
	users, err := s.users.BannedUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list banned users: %w", err)
	}
	return users, nil
}
