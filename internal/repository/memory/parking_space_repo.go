// Package memory keeps spaces and notifications in process memory. It backs
// STORE_BACKEND=memory and the service tests.
package memory

import (
	"context"
	"fmt"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"sort"
	"sync"
	"time"
)

type memParkingSpaceRepository struct {
	mu     sync.Mutex
	spaces map[string]domain.ParkingSpace
}

func NewParkingSpaceRepository(seed ...domain.ParkingSpace) repository.ParkingSpaceRepository {
	r := &memParkingSpaceRepository{spaces: make(map[string]domain.ParkingSpace, len(seed))}
	for _, s := range seed {
		r.spaces[s.Number] = clone(s)
	}
	return r
}

func (r *memParkingSpaceRepository) FindByNumber(ctx context.Context, number string) (*domain.ParkingSpace, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.spaces[number]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clone(s)
	return &out, nil
}

func (r *memParkingSpaceRepository) CompareAndSwap(ctx context.Context, number string, expect repository.Expectation, m repository.SpaceMutation) (*domain.ParkingSpace, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.spaces[number]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.Status != expect.Status || s.Version != expect.Version {
		return nil, repository.ErrConflict
	}
	next := m.Apply(s)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("ParkingSpaceRepository.CompareAndSwap: %w", err)
	}
	r.spaces[number] = next
	out := clone(next)
	return &out, nil
}

func (r *memParkingSpaceRepository) List(ctx context.Context, filter domain.SpaceFilter) ([]domain.ParkingSpace, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ParkingSpace, 0, len(r.spaces))
	for _, s := range r.spaces {
		if filter.Matches(s) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *memParkingSpaceRepository) ListExpiredReservations(ctx context.Context, now time.Time) ([]domain.ParkingSpace, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ParkingSpace
	for _, s := range r.spaces {
		if s.Status == domain.StatusReserved && s.Reservation != nil && s.Reservation.Expired(now) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reservation.ExpiresAt.Before(out[j].Reservation.ExpiresAt)
	})
	return out, nil
}

func (r *memParkingSpaceRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spaces), nil
}

func (r *memParkingSpaceRepository) CreateMany(ctx context.Context, spaces []domain.ParkingSpace) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range spaces {
		if _, exists := r.spaces[s.Number]; exists {
			return fmt.Errorf("%w: space '%s'", repository.ErrDuplicateEntry, s.Number)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("ParkingSpaceRepository.CreateMany: %w", err)
		}
	}
	for _, s := range spaces {
		r.spaces[s.Number] = clone(s)
	}
	return nil
}

func (r *memParkingSpaceRepository) DeleteFree(ctx context.Context, numbers []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for _, n := range numbers {
		if s, ok := r.spaces[n]; ok && s.Status == domain.StatusFree {
			delete(r.spaces, n)
			deleted++
		}
	}
	return deleted, nil
}

func clone(s domain.ParkingSpace) domain.ParkingSpace {
	if s.Reservation != nil {
		r := *s.Reservation
		s.Reservation = &r
	}
	return s
}
