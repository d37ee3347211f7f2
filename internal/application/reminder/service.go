package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/erinder/internal/domain"
	"github.com/erinder/internal/pkg/id"
	"github.com/erinder/internal/pkg/validate"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldTitle        = "title"
	fieldTriggerAt    = "trigger_at"
	fieldDestinations = "destinations"
	fieldRecurrence   = "recurrence"
	fieldDelivered    = "delivered"
	fieldPending      = "pending"
)

// Service manages reminders on behalf of an owner. An empty ownerID means the
// caller is not scoped to an owner and sees every reminder.
type Service interface {
	Create(ctx context.Context, ownerID string, input domain.CreateReminderRequest) (*domain.Reminder, error)
	List(ctx context.Context, ownerID string) ([]domain.Reminder, error)
	Get(ctx context.Context, ownerID, reminderID string) (*domain.Reminder, error)
	Update(ctx context.Context, ownerID, reminderID string, input domain.UpdateReminderRequest) (*domain.Reminder, error)
	Delete(ctx context.Context, ownerID, reminderID string) error
	DeleteAll(ctx context.Context, ownerID string) (int, error)
}

type reminderStore interface {
	Put(ctx context.Context, r *domain.Reminder) error
	Get(ctx context.Context, reminderID string) (*domain.Reminder, error)
	List(ctx context.Context, ownerID string) ([]domain.Reminder, error)
	Update(ctx context.Context, reminderID string, updates map[string]interface{}) (*domain.Reminder, error)
	Delete(ctx context.Context, reminderID string) error
	DeleteAll(ctx context.Context, ownerID string) (int, error)
}

type service struct {
	repo reminderStore
	now  func() time.Time
}

func NewService(repo reminderStore) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) Create(ctx context.Context, ownerID string, input domain.CreateReminderRequest) (*domain.Reminder, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r := &domain.Reminder{
		ReminderID:   id.New(),
		OwnerID:      ownerID,
		Title:        input.Title,
		TriggerAt:    input.TriggerAt.UTC(),
		Destinations: resolveChannels(input.Destinations),
		Recurrence:   input.Recurrence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.SetDelivered(false)
	if err := s.repo.Put(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *service) List(ctx context.Context, ownerID string) ([]domain.Reminder, error) {
	return s.repo.List(ctx, ownerID)
}

func (s *service) Get(ctx context.Context, ownerID, reminderID string) (*domain.Reminder, error) {
	if !id.Valid(reminderID) {
		return nil, fmt.Errorf("reminder %q: %w", reminderID, domain.ErrNotFound)
	}
	r, err := s.repo.Get(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && r.OwnerID != ownerID {
		return nil, fmt.Errorf("reminder %s: %w", reminderID, domain.ErrNotFound)
	}
	return r, nil
}

// Update applies the non-nil fields of input. Moving the trigger into the
// future re-arms a reminder that was already delivered.
func (s *service) Update(ctx context.Context, ownerID, reminderID string, input domain.UpdateReminderRequest) (*domain.Reminder, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, ownerID, reminderID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		updates[fieldTitle] = *input.Title
	}
	if input.Destinations != nil {
		updates[fieldDestinations] = resolveChannels(*input.Destinations)
	}
	if input.Recurrence != nil {
		updates[fieldRecurrence] = *input.Recurrence
	}
	if input.TriggerAt != nil {
		at := input.TriggerAt.UTC()
		updates[fieldTriggerAt] = at
		if at.After(s.now()) {
			updates[fieldDelivered] = false
			updates[fieldPending] = domain.PendingMarker
		}
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", domain.ErrBadRequest)
	}
	return s.repo.Update(ctx, reminderID, updates)
}

func (s *service) Delete(ctx context.Context, ownerID, reminderID string) error {
	if _, err := s.Get(ctx, ownerID, reminderID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, reminderID)
}

func (s *service) DeleteAll(ctx context.Context, ownerID string) (int, error) {
	return s.repo.DeleteAll(ctx, ownerID)
}

// resolveChannels tags each destination with its channel so dispatch does
// not have to guess later.
func resolveChannels(in []domain.Destination) []domain.Destination {
	out := make([]domain.Destination, len(in))
	for i, d := range in {
		out[i] = domain.Destination{Channel: d.ResolveChannel(), Address: d.Address}
	}
	return out
}
