package http

import (
	"context"

	"github.com/erinder/internal/domain"
)

// ReminderRepository is the minimal interface the router requires from a reminder store.
type ReminderRepository interface {
	Put(ctx context.Context, r *domain.Reminder) error
	Get(ctx context.Context, reminderID string) (*domain.Reminder, error)
	List(ctx context.Context, ownerID string) ([]domain.Reminder, error)
	Update(ctx context.Context, reminderID string, updates map[string]interface{}) (*domain.Reminder, error)
	Delete(ctx context.Context, reminderID string) error
	DeleteAll(ctx context.Context, ownerID string) (int, error)
}
