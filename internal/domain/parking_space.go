package domain

import (
	"fmt"
	"strings"
	"time"
)

type SpaceStatus string

const (
	StatusFree         SpaceStatus = "free"
	StatusOccupied     SpaceStatus = "occupied"
	StatusReserved     SpaceStatus = "reserved"
	StatusOutOfService SpaceStatus = "out_of_service"
)

// Statuses lists every space status in display order.
var Statuses = []SpaceStatus{StatusFree, StatusReserved, StatusOccupied, StatusOutOfService}

func (s SpaceStatus) Valid() bool {
	switch s {
	case StatusFree, StatusOccupied, StatusReserved, StatusOutOfService:
		return true
	}
	return false
}

func ParseSpaceStatus(v string) (SpaceStatus, error) {
	s := SpaceStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
	}
	return s, nil
}

type VehicleClass string

const (
	VehicleCar        VehicleClass = "car"
	VehicleTruck      VehicleClass = "truck"
	VehicleMotorcycle VehicleClass = "motorcycle"
)

func (c VehicleClass) Valid() bool {
	switch c {
	case VehicleCar, VehicleTruck, VehicleMotorcycle:
		return true
	}
	return false
}

func ParseVehicleClass(v string) (VehicleClass, error) {
	c := VehicleClass(strings.ToLower(strings.TrimSpace(v)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown vehicle class %q", ErrInvalidInput, v)
	}
	return c, nil
}

// Reservation is a time-bounded hold on a free space for one plate.
type Reservation struct {
	Plate        string       `json:"plate"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// Expired reports whether the hold is past its deadline at now.
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

type ParkingSpace struct {
	Number             string       `json:"number"`
	Zone               string       `json:"zone"`
	VehicleClass       VehicleClass `json:"vehicle_class"`
	Status             SpaceStatus  `json:"status"`
	Reservation        *Reservation `json:"reservation,omitempty"`
	CurrentSessionID   string       `json:"current_session_id,omitempty"`
	OutOfServiceReason string       `json:"out_of_service_reason,omitempty"`
	Version            int64        `json:"version"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Validate checks the structural invariants that tie the optional fields to the status.
func (s ParkingSpace) Validate() error {
	if s.Number == "" {
		return fmt.Errorf("%w: space number is empty", ErrInvalidInput)
	}
	if !s.VehicleClass.Valid() {
		return fmt.Errorf("%w: space %s has unknown vehicle class %q", ErrInvalidInput, s.Number, s.VehicleClass)
	}
	switch s.Status {
	case StatusFree:
		if s.Reservation != nil || s.CurrentSessionID != "" || s.OutOfServiceReason != "" {
			return fmt.Errorf("space %s: free space carries reservation, session or reason", s.Number)
		}
	case StatusReserved:
		if s.Reservation == nil {
			return fmt.Errorf("space %s: reserved without reservation", s.Number)
		}
		if s.CurrentSessionID != "" || s.OutOfServiceReason != "" {
			return fmt.Errorf("space %s: reserved space carries session or reason", s.Number)
		}
		if !s.Reservation.ExpiresAt.After(s.Reservation.CreatedAt) {
			return fmt.Errorf("space %s: reservation expires_at must be after created_at", s.Number)
		}
	case StatusOccupied:
		if s.CurrentSessionID == "" {
			return fmt.Errorf("space %s: occupied without session", s.Number)
		}
		if s.Reservation != nil || s.OutOfServiceReason != "" {
			return fmt.Errorf("space %s: occupied space carries reservation or reason", s.Number)
		}
	case StatusOutOfService:
		if s.OutOfServiceReason == "" {
			return fmt.Errorf("space %s: out of service without reason", s.Number)
		}
		if s.Reservation != nil || s.CurrentSessionID != "" {
			return fmt.Errorf("space %s: out of service space carries reservation or session", s.Number)
		}
	default:
		return fmt.Errorf("%w: space %s has unknown status %q", ErrInvalidInput, s.Number, s.Status)
	}
	return nil
}

// NormalizePlate upper-cases a plate and strips whitespace, dashes and dots.
func NormalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.':
			return -1
		}
		return r
	}, plate)
}

type SpaceFilter struct {
	Zone         string        `form:"zone"`
	Status       *SpaceStatus  `form:"-"`
	VehicleClass *VehicleClass `form:"-"`
}

// Matches reports whether a space satisfies every set filter field.
func (f SpaceFilter) Matches(s ParkingSpace) bool {
	if f.Zone != "" && !strings.EqualFold(f.Zone, s.Zone) {
		return false
	}
	if f.Status != nil && *f.Status != s.Status {
		return false
	}
	if f.VehicleClass != nil && *f.VehicleClass != s.VehicleClass {
		return false
	}
	return true
}

// SpaceSummary counts spaces per status, overall and by zone.
type SpaceSummary struct {
	Total    int                            `json:"total"`
	ByStatus map[SpaceStatus]int            `json:"by_status"`
	ByZone   map[string]map[SpaceStatus]int `json:"by_zone"`
}

type ReserveSpaceDTO struct {
	Plate        string `json:"plate" binding:"required"`
	VehicleClass string `json:"vehicle_class" binding:"required"`
	TTLSeconds   int    `json:"ttl_seconds,omitempty"`
}

type OccupySpaceDTO struct {
	SessionID    string `json:"session_id" binding:"required"`
	Plate        string `json:"plate"`
	VehicleClass string `json:"vehicle_class" binding:"required"`
}

type FreeSpaceDTO struct {
	SessionID string `json:"session_id" binding:"required"`
}

type OutOfServiceDTO struct {
	Reason string `json:"reason" binding:"required"`
	Force  bool   `json:"force,omitempty"`
}

type ProvisionDTO struct {
	TotalSpaces   int `json:"total_spaces,omitempty"`
	SpacesPerZone int `json:"spaces_per_zone,omitempty"`
}
