package repository

import (
	"context"
	"errors"
	"parking_lifecycle/internal/domain"
	"time"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")

// ErrConflict means a conditional update found the record in a different state than expected.
var ErrConflict = errors.New("record changed concurrently")

// ErrUnavailable wraps driver errors that mean the store could not be reached or did not answer.
var ErrUnavailable = errors.New("store unavailable")

// Expectation is the state a conditional update requires. Version is bumped on every
// mutation, so a matching version means nothing has changed since the record was read.
type Expectation struct {
	Status  domain.SpaceStatus
	Version int64
}

// SpaceMutation carries every lifecycle field a transition writes. Unset optional
// fields are cleared.
type SpaceMutation struct {
	Status             domain.SpaceStatus
	Reservation        *domain.Reservation
	CurrentSessionID   string
	OutOfServiceReason string
	UpdatedAt          time.Time
}

// Apply returns a copy of space with the mutation applied and the version bumped.
func (m SpaceMutation) Apply(space domain.ParkingSpace) domain.ParkingSpace {
	space.Status = m.Status
	space.Reservation = nil
	if m.Reservation != nil {
		r := *m.Reservation
		space.Reservation = &r
	}
	space.CurrentSessionID = m.CurrentSessionID
	space.OutOfServiceReason = m.OutOfServiceReason
	space.UpdatedAt = m.UpdatedAt
	space.Version++
	return space
}

type ParkingSpaceRepository interface {
	FindByNumber(ctx context.Context, number string) (*domain.ParkingSpace, error)
	// CompareAndSwap applies m atomically iff the stored space still matches expect.
	// It returns ErrNotFound for an unknown number and ErrConflict when expect does not hold.
	CompareAndSwap(ctx context.Context, number string, expect Expectation, m SpaceMutation) (*domain.ParkingSpace, error)
	List(ctx context.Context, filter domain.SpaceFilter) ([]domain.ParkingSpace, error)
	ListExpiredReservations(ctx context.Context, now time.Time) ([]domain.ParkingSpace, error)
	Count(ctx context.Context) (int, error)
	CreateMany(ctx context.Context, spaces []domain.ParkingSpace) error
	// DeleteFree removes the listed spaces that are still free and reports how many went.
	DeleteFree(ctx context.Context, numbers []string) (int, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindRecent(ctx context.Context, spaceNumber string, limit int) ([]domain.Notification, error)
}
