// Package notify holds the destinations a committed transition's notification can be handed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
)

type Sink interface {
	Emit(ctx context.Context, n domain.Notification) error
}

// StoreSink persists notifications through a NotificationRepository.
type StoreSink struct {
	repo repository.NotificationRepository
}

func NewStoreSink(repo repository.NotificationRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Emit(ctx context.Context, n domain.Notification) error {
	if err := s.repo.Create(ctx, &n); err != nil {
		return fmt.Errorf("%w: store: %w", domain.ErrSinkUnavailable, err)
	}
	return nil
}

// MultiSink hands every notification to each sink in order and joins their failures.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogSink struct{}

func (LogSink) Emit(_ context.Context, n domain.Notification) error {
	log.Printf("Notification [%s] %s: %s (space %s)", n.Category, n.Title, n.Message, n.Event.SpaceNumber)
	return nil
}
