package service

import (
	"context"
	"fmt"
	"log"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/metrics"
	"parking_lifecycle/internal/notify"
	"time"

	"github.com/google/uuid"
)

const expiryLayout = "2006-01-02 15:04 MST"

type notificationTemplate struct {
	title  string
	render func(ev domain.NotificationEvent) string
}

var notificationTemplates = map[domain.NotificationKind]notificationTemplate{
	domain.NotifySpaceReserved: {
		title: "Space reserved",
		render: func(ev domain.NotificationEvent) string {
			return fmt.Sprintf("Space %s is reserved for %s until %s.", ev.SpaceNumber, ev.Plate, formatExpiry(ev.ExpiresAt))
		},
	},
	domain.NotifyReservationCancelled: {
		title: "Reservation cancelled",
		render: func(ev domain.NotificationEvent) string {
			if ev.Reason == domain.ReasonExpired {
				return fmt.Sprintf("Reservation of space %s for %s expired at %s.", ev.SpaceNumber, ev.Plate, formatExpiry(ev.ExpiresAt))
			}
			return fmt.Sprintf("Reservation of space %s for %s was cancelled.", ev.SpaceNumber, ev.Plate)
		},
	},
	domain.NotifySpaceOccupied: {
		title: "Space occupied",
		render: func(ev domain.NotificationEvent) string {
			if ev.Plate != "" {
				return fmt.Sprintf("Space %s is occupied by %s (session %s).", ev.SpaceNumber, ev.Plate, ev.SessionID)
			}
			return fmt.Sprintf("Space %s is occupied (session %s).", ev.SpaceNumber, ev.SessionID)
		},
	},
	domain.NotifySpaceFreed: {
		title: "Space freed",
		render: func(ev domain.NotificationEvent) string {
			return fmt.Sprintf("Space %s is free again (session %s ended).", ev.SpaceNumber, ev.SessionID)
		},
	},
	domain.NotifySpaceOutOfService: {
		title: "Space out of service",
		render: func(ev domain.NotificationEvent) string {
			return fmt.Sprintf("Space %s is out of service: %s.", ev.SpaceNumber, ev.Reason)
		},
	},
	domain.NotifySpaceInService: {
		title: "Space back in service",
		render: func(ev domain.NotificationEvent) string {
			return fmt.Sprintf("Space %s is back in service.", ev.SpaceNumber)
		},
	},
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format(expiryLayout)
}

// NotificationEmitter turns committed transitions into notifications for a sink.
// Sink failures are logged and counted, never returned to the caller.
type NotificationEmitter struct {
	sink    notify.Sink
	metrics *metrics.Metrics
	newID   func() string
}

func NewNotificationEmitter(sink notify.Sink, m *metrics.Metrics) *NotificationEmitter {
	return &NotificationEmitter{sink: sink, metrics: m, newID: uuid.NewString}
}

// Build fills the id and renders the template for ev.
func (e *NotificationEmitter) Build(ev domain.NotificationEvent) (domain.Notification, error) {
	tpl, ok := notificationTemplates[ev.Kind]
	if !ok {
		return domain.Notification{}, fmt.Errorf("no notification template for kind %q", ev.Kind)
	}
	if ev.ID == "" {
		ev.ID = e.newID()
	}
	return domain.Notification{
		Title:    tpl.title,
		Message:  tpl.render(ev),
		Category: domain.NotificationCategoryParking,
		Event:    ev,
	}, nil
}

func (e *NotificationEmitter) Emit(ctx context.Context, ev domain.NotificationEvent) {
	if e == nil || e.sink == nil {
		return
	}
	n, err := e.Build(ev)
	if err != nil {
		log.Printf("NotificationEmitter: %v", err)
		e.metrics.ObserveNotification(metrics.ResultError)
		return
	}
	if err := e.sink.Emit(ctx, n); err != nil {
		log.Printf("NotificationEmitter: sink failed for %s on space %s: %v", ev.Kind, ev.SpaceNumber, err)
		e.metrics.ObserveNotification(metrics.ResultError)
		return
	}
	e.metrics.ObserveNotification(metrics.ResultOK)
}
