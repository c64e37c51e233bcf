package domain

import "time"

type NotificationKind string

const (
	NotifySpaceReserved        NotificationKind = "space_reserved"
	NotifyReservationCancelled NotificationKind = "reservation_cancelled"
	NotifySpaceOccupied        NotificationKind = "space_occupied"
	NotifySpaceFreed           NotificationKind = "space_freed"
	NotifySpaceOutOfService    NotificationKind = "space_out_of_service"
	NotifySpaceInService       NotificationKind = "space_in_service"
)

const (
	ReasonCancelledByUser = "cancelled_by_user"
	ReasonExpired         = "expired"
)

const NotificationCategoryParking = "parking"

// NotificationEvent describes a committed transition. It is produced by the
// lifecycle core and consumed by the notification store.
type NotificationEvent struct {
	ID           string           `json:"id"`
	Kind         NotificationKind `json:"kind"`
	SpaceNumber  string           `json:"space_number"`
	Plate        string           `json:"plate,omitempty"`
	VehicleClass VehicleClass     `json:"vehicle_class,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Notification is the user-facing record handed to a sink.
type Notification struct {
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Event    NotificationEvent `json:"event"`
}

// SpaceUpdate is pushed to dashboard clients after every committed transition.
type SpaceUpdate struct {
	Type  string           `json:"type"`
	Kind  NotificationKind `json:"kind"`
	Space ParkingSpace     `json:"space"`
}
