package memory

import (
	"context"
	"fmt"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"sync"
)

type memNotificationRepository struct {
	mu    sync.Mutex
	items []domain.Notification
	limit int
}

// NewNotificationRepository keeps at most limit notifications, dropping the oldest.
func NewNotificationRepository(limit int) repository.NotificationRepository {
	if limit <= 0 {
		limit = 1000
	}
	return &memNotificationRepository{limit: limit}
}

func (r *memNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *n)
	if len(r.items) > r.limit {
		r.items = append([]domain.Notification(nil), r.items[len(r.items)-r.limit:]...)
	}
	return nil
}

// FindRecent returns the newest notifications first, optionally for one space.
func (r *memNotificationRepository) FindRecent(ctx context.Context, spaceNumber string, limit int) ([]domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for i := len(r.items) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if spaceNumber != "" && r.items[i].Event.SpaceNumber != spaceNumber {
			continue
		}
		out = append(out, r.items[i])
	}
	return out, nil
}
