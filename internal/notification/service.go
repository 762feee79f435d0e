package notification

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/core/datamodel/notification"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	maxTitleLength = 200
)

type ServiceAPI interface {
	Notify(ctx context.Context, userID int64, title, message string, severity notification.Severity) error
	List(ctx context.Context, userID int64, unreadOnly bool, page, perPage int) (*ListResult, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Notify stores one in-app notification for userID.
func (s *Service) Notify(ctx context.Context, userID int64, title, message string, severity notification.Severity) error {
	title = strings.TrimSpace(title)
	if userID <= 0 || title == "" {
		return apperrors.NewValidationError("notification needs a recipient and a title", apperrors.ErrCodeValidationFailed)
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	if severity == "" {
		severity = notification.SeverityInfo
	}

	n := &notification.Notification{
		UserID:   userID,
		Title:    title,
		Message:  message,
		Severity: severity,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("failed to store notification", "user_id", userID, "title", title, "error", err)
		return apperrors.NewInternalError("failed to store notification", err)
	}
	s.logger.Info("notification stored", "user_id", userID, "notification_id", n.ID, "severity", severity)
	return nil
}

func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, page, perPage int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	items, total, err := s.repo.ListByUser(ctx, userID, unreadOnly, page, perPage)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list notifications", err)
	}
	views := make([]View, 0, len(items))
	for _, n := range items {
		views = append(views, ToView(n))
	}
	return &ListResult{Items: views, Page: page, PerPage: perPage, Total: total}, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to count notifications", err)
	}
	return count, nil
}

func (s *Service) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	for _, id := range ids {
		if id <= 0 {
			return 0, apperrors.NewValidationError("notification ids must be positive", apperrors.ErrCodeValidationFailed)
		}
	}
	updated, err := s.repo.MarkRead(ctx, userID, ids)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to update notifications", err)
	}
	if len(ids) > 0 && updated == 0 {
		return 0, apperrors.NewNotFoundError("notification not found", apperrors.ErrCodeNotificationMissing)
	}
	return updated, nil
}
