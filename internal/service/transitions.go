package service

import (
	"errors"
	"fmt"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"time"
)

// TransitionKind is the closed set of lifecycle transitions.
type TransitionKind int

const (
	TransitionReserve TransitionKind = iota + 1
	TransitionCancelReservation
	TransitionOccupy
	TransitionFree
	TransitionSetOutOfService
	TransitionSetInService
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionReserve:
		return "reserve"
	case TransitionCancelReservation:
		return "cancel_reservation"
	case TransitionOccupy:
		return "occupy"
	case TransitionFree:
		return "free"
	case TransitionSetOutOfService:
		return "set_out_of_service"
	case TransitionSetInService:
		return "set_in_service"
	}
	return fmt.Sprintf("transition(%d)", int(k))
}

// NotificationKind is the notification a successful transition of this kind emits.
func (k TransitionKind) NotificationKind() domain.NotificationKind {
	switch k {
	case TransitionReserve:
		return domain.NotifySpaceReserved
	case TransitionCancelReservation:
		return domain.NotifyReservationCancelled
	case TransitionOccupy:
		return domain.NotifySpaceOccupied
	case TransitionFree:
		return domain.NotifySpaceFreed
	case TransitionSetOutOfService:
		return domain.NotifySpaceOutOfService
	case TransitionSetInService:
		return domain.NotifySpaceInService
	}
	return ""
}

// errReservationNotExpired rejects an expiry whose reservation was replaced by a fresh one.
var errReservationNotExpired = errors.New("reservation has not expired")

// transitionRequest is a validated, normalised lifecycle command.
type transitionRequest struct {
	kind         TransitionKind
	number       string
	plate        string
	vehicleClass domain.VehicleClass
	sessionID    string
	reason       string
	force        bool
	ttl          time.Duration
	// onlyExpired restricts a cancellation to reservations past their deadline.
	onlyExpired bool
}

// plan checks req's precondition against the current space and returns the mutation
// that realises its effect. A failed precondition returns the typed error and no mutation.
func plan(space domain.ParkingSpace, req transitionRequest, now time.Time) (repository.SpaceMutation, error) {
	m := repository.SpaceMutation{UpdatedAt: now}

	switch req.kind {
	case TransitionReserve:
		if space.Status != domain.StatusFree {
			return m, domain.ErrNotAvailable
		}
		m.Status = domain.StatusReserved
		m.Reservation = &domain.Reservation{
			Plate:        req.plate,
			VehicleClass: req.vehicleClass,
			CreatedAt:    now,
			ExpiresAt:    now.Add(req.ttl),
		}

	case TransitionCancelReservation:
		if space.Status != domain.StatusReserved || space.Reservation == nil {
			return m, domain.ErrNotReserved
		}
		if req.onlyExpired && !space.Reservation.Expired(now) {
			return m, errReservationNotExpired
		}
		m.Status = domain.StatusFree

	case TransitionOccupy:
		switch space.Status {
		case domain.StatusFree:
		case domain.StatusReserved:
			if req.plate == "" {
				return m, domain.ErrPlateRequired
			}
			if space.Reservation == nil || space.Reservation.Plate != req.plate {
				return m, domain.ErrPlateMismatch
			}
		default:
			return m, domain.ErrNotAvailable
		}
		m.Status = domain.StatusOccupied
		m.CurrentSessionID = req.sessionID

	case TransitionFree:
		if space.Status != domain.StatusOccupied {
			return m, domain.ErrNotOccupied
		}
		if space.CurrentSessionID != req.sessionID {
			return m, domain.ErrSessionMismatch
		}
		m.Status = domain.StatusFree

	case TransitionSetOutOfService:
		switch space.Status {
		case domain.StatusFree:
		case domain.StatusReserved, domain.StatusOccupied:
			if !req.force {
				return m, domain.ErrNotEligible
			}
		default:
			return m, domain.ErrNotEligible
		}
		m.Status = domain.StatusOutOfService
		m.OutOfServiceReason = req.reason

	case TransitionSetInService:
		if space.Status != domain.StatusOutOfService {
			return m, domain.ErrNotOutOfService
		}
		m.Status = domain.StatusFree

	default:
		return m, fmt.Errorf("unknown transition kind %d", int(req.kind))
	}
	return m, nil
}
