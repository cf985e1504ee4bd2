package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medibridge/medibridge-api/internal/pkg/logger"
)

// Service handles notification logic
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates notification service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Notify records a message for accountID. Delivery is best effort: a
// failure is logged and otherwise ignored, so callers must not invoke it
// inside a unit of work they care about.
func (s *Service) Notify(ctx context.Context, accountID uuid.UUID, message string) {
	n := &Notification{
		ID:        uuid.New(),
		AccountID: accountID,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		logger.FromContext(ctx).Warn().
			Err(err).
			Str("account_id", accountID.String()).
			Msg("failed to store notification")
	}
}

// List returns notifications for an account, newest first
func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Notification, error) {
	return s.repo.ListByAccount(ctx, accountID, limit, offset)
}

// GetUnreadCount returns unread count
func (s *Service) GetUnreadCount(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, accountID)
}

// MarkAsRead marks one of the account's notifications as read
func (s *Service) MarkAsRead(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, accountID, id, s.now().UTC())
}
