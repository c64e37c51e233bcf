package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"parking_lifecycle/internal/domain"
)

// ErrMalformedEvent marks a sensor message that can never be processed.
var ErrMalformedEvent = errors.New("malformed sensor event")

// OccupancyService turns bay sensor reports into Occupy and Free transitions.
type OccupancyService struct {
	lifecycle *SpaceLifecycleService
}

func NewOccupancyService(lifecycle *SpaceLifecycleService) *OccupancyService {
	return &OccupancyService{lifecycle: lifecycle}
}

// Retryable reports whether a failed sensor message should be redelivered.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable)
}

// HandleSensorEvent routes one queued sensor message on its message_type.
func (s *OccupancyService) HandleSensorEvent(ctx context.Context, body string) error {
	var generic domain.GenericSensorEvent
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	generic.RawPayload = json.RawMessage(body)

	switch generic.MessageType {
	case domain.MessageTypeSpaceOccupancy:
		var ev domain.SpaceOccupancyEvent
		if err := json.Unmarshal(generic.RawPayload, &ev); err != nil {
			return fmt.Errorf("%w: space_occupancy: %v", ErrMalformedEvent, err)
		}
		ev.GenericSensorEvent = generic
		return s.handleOccupancy(ctx, ev)
	default:
		log.Printf("OccupancyService: ignoring message_type %q from device %s", generic.MessageType, generic.DeviceID)
		return nil
	}
}

func (s *OccupancyService) handleOccupancy(ctx context.Context, ev domain.SpaceOccupancyEvent) error {
	if ev.SpaceNumber == "" || ev.SessionID == "" {
		return fmt.Errorf("%w: space_number and session_id are required", ErrMalformedEvent)
	}

	if !ev.Occupied {
		_, err := s.lifecycle.Free(ctx, ev.SpaceNumber, ev.SessionID)
		return s.outcome("free", ev, err)
	}

	var class domain.VehicleClass
	if ev.VehicleClass != "" {
		c, err := domain.ParseVehicleClass(ev.VehicleClass)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		class = c
	} else {
		space, err := s.lifecycle.GetSpace(ctx, ev.SpaceNumber)
		if err != nil {
			return s.outcome("occupy", ev, err)
		}
		class = space.VehicleClass
	}

	_, err := s.lifecycle.Occupy(ctx, OccupyInput{
		Number:       ev.SpaceNumber,
		SessionID:    ev.SessionID,
		Plate:        ev.Plate,
		VehicleClass: class,
	})
	return s.outcome("occupy", ev, err)
}

func (s *OccupancyService) outcome(op string, ev domain.SpaceOccupancyEvent, err error) error {
	if err == nil {
		log.Printf("OccupancyService: %s space %s (session %s) from device %s", op, ev.SpaceNumber, ev.SessionID, ev.DeviceID)
		return nil
	}
	if Retryable(err) {
		return err
	}
	log.Printf("OccupancyService: %s space %s rejected: %v", op, ev.SpaceNumber, err)
	return err
}
