package service

import (
	"context"
	"encoding/json"
	"fmt"

	"anoa.com/gamiledger/internal/entity"
	notifRepo "anoa.com/gamiledger/internal/modules/notification/repository"
	"anoa.com/gamiledger/pkg/apperror"
	commonDto "anoa.com/gamiledger/pkg/dto"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel carrying a user's live notifications.
func Channel(userID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

type NotificationPage struct {
	Data []entity.Notification   `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type NotificationService interface {
	CreateNotification(ctx context.Context, notification *entity.Notification) error
	GetNotifications(ctx context.Context, userID uuid.UUID, page commonDto.Pagination) (*NotificationPage, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)

	NotifyTierUp(ctx context.Context, userID uuid.UUID, oldTier, newTier string, total int) error
	NotifyQuestCompleted(ctx context.Context, userID, progressID uuid.UUID, title string, points int) error
	NotifyGoalCompleted(ctx context.Context, userID, goalID uuid.UUID, title string, reward int) error
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	redisClient *redis.Client
	log         *logger.Logger
}

func NewNotificationService(repo notifRepo.NotificationRepository, redisClient *redis.Client, log *logger.Logger) NotificationService {
	return &notificationService{
		repo:        repo,
		redisClient: redisClient,
		log:         log.With("component", "notifications"),
	}
}

func (s *notificationService) CreateNotification(ctx context.Context, notification *entity.Notification) error {
	if err := s.repo.Create(ctx, notification); err != nil {
		return apperror.FromStore("notification.create", err)
	}

	// live delivery is best effort; the stored row is what the inbox reads
	if s.redisClient != nil {
		payload, err := json.Marshal(notification)
		if err != nil {
			return nil
		}
		if err := s.redisClient.Publish(ctx, Channel(notification.UserID), payload).Err(); err != nil {
			s.log.Warn("failed to publish notification", "user_id", notification.UserID, "error", err)
		}
	}
	return nil
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, page commonDto.Pagination) (*NotificationPage, error) {
	offset := page.Normalize()
	rows, total, err := s.repo.GetByUserID(ctx, userID, page.Limit, offset)
	if err != nil {
		return nil, apperror.FromStore("notification.list", err)
	}
	if rows == nil {
		rows = []entity.Notification{}
	}
	return &NotificationPage{Data: rows, Meta: commonDto.NewPaginationMeta(page, total)}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.repo.MarkAsRead(ctx, userID, id)
	if err != nil {
		return apperror.FromStore("notification.mark_read", err)
	}
	if !ok {
		return fmt.Errorf("notification %s: %w", id, apperror.ErrNotFound)
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return apperror.FromStore("notification.mark_all_read", s.repo.MarkAllAsRead(ctx, userID))
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	return n, apperror.FromStore("notification.unread_count", err)
}

func (s *notificationService) NotifyTierUp(ctx context.Context, userID uuid.UUID, oldTier, newTier string, total int) error {
	return s.CreateNotification(ctx, &entity.Notification{
		UserID:     userID,
		EntityType: "user_progress",
		Type:       entity.NotificationTierUp,
		Message:    fmt.Sprintf("You moved up from %s to %s with %d points", oldTier, newTier, total),
	})
}

func (s *notificationService) NotifyQuestCompleted(ctx context.Context, userID, progressID uuid.UUID, title string, points int) error {
	return s.CreateNotification(ctx, &entity.Notification{
		UserID:     userID,
		EntityID:   &progressID,
		EntityType: "quest_progress",
		Type:       entity.NotificationQuestCompleted,
		Message:    fmt.Sprintf("Quest completed: %s (+%d points)", title, points),
	})
}

func (s *notificationService) NotifyGoalCompleted(ctx context.Context, userID, goalID uuid.UUID, title string, reward int) error {
	return s.CreateNotification(ctx, &entity.Notification{
		UserID:     userID,
		EntityID:   &goalID,
		EntityType: "weekly_goal",
		Type:       entity.NotificationGoalCompleted,
		Message:    fmt.Sprintf("Weekly goal reached: %s (+%d points)", title, reward),
	})
}
