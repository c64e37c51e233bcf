package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"parking_lifecycle/internal/clock"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/metrics"
	"parking_lifecycle/internal/repository"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultReservationTTL    = 30 * time.Minute
	defaultMaxReservationTTL = 24 * time.Hour
	maxCASAttempts           = 5
)

// SpaceObserver is told about every committed transition, after the store write.
type SpaceObserver interface {
	SpaceChanged(kind domain.NotificationKind, space domain.ParkingSpace)
}

// SpaceLifecycleService is the only writer of space status.
type SpaceLifecycleService struct {
	spaces    repository.ParkingSpaceRepository
	emitter   *NotificationEmitter
	clock     clock.Clock
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	observers []SpaceObserver

	defaultTTL time.Duration
	maxTTL     time.Duration
	layout     ZoneLayout
}

type LifecycleOption func(*SpaceLifecycleService)

// WithReservationTTL sets the TTL used when a request names none, and the upper bound.
func WithReservationTTL(def, limit time.Duration) LifecycleOption {
	return func(s *SpaceLifecycleService) {
		if def > 0 {
			s.defaultTTL = def
		}
		if limit > 0 {
			s.maxTTL = limit
		}
	}
}

func WithMetrics(m *metrics.Metrics) LifecycleOption {
	return func(s *SpaceLifecycleService) { s.metrics = m }
}

func WithObserver(o SpaceObserver) LifecycleOption {
	return func(s *SpaceLifecycleService) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func WithZoneLayout(l ZoneLayout) LifecycleOption {
	return func(s *SpaceLifecycleService) { s.layout = l }
}

func NewSpaceLifecycleService(spaces repository.ParkingSpaceRepository, emitter *NotificationEmitter, clk clock.Clock, opts ...LifecycleOption) *SpaceLifecycleService {
	svc := &SpaceLifecycleService{
		spaces:     spaces,
		emitter:    emitter,
		clock:      clk,
		tracer:     otel.Tracer("parking_lifecycle/internal/service"),
		defaultTTL: defaultReservationTTL,
		maxTTL:     defaultMaxReservationTTL,
		layout:     ZoneLayout{SpacesPerZone: defaultSpacesPerZone},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReserveInput struct {
	Number       string
	Plate        string
	VehicleClass domain.VehicleClass
	// TTL zero means the configured default.
	TTL time.Duration
}

type OccupyInput struct {
	Number       string
	SessionID    string
	Plate        string
	VehicleClass domain.VehicleClass
}

type OutOfServiceInput struct {
	Number string
	Reason string
	// Force also takes reserved and occupied spaces out of service, dropping the hold or session.
	Force bool
}

func normalizeNumber(n string) string {
	return strings.ToUpper(strings.TrimSpace(n))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *SpaceLifecycleService) Reserve(ctx context.Context, in ReserveInput) (domain.ParkingSpace, error) {
	req := transitionRequest{
		kind:         TransitionReserve,
		number:       normalizeNumber(in.Number),
		plate:        domain.NormalizePlate(in.Plate),
		vehicleClass: in.VehicleClass,
		ttl:          in.TTL,
	}
	if req.number == "" {
		return domain.ParkingSpace{}, invalid("space number is required")
	}
	if req.plate == "" {
		return domain.ParkingSpace{}, invalid("plate is required")
	}
	if !req.vehicleClass.Valid() {
		return domain.ParkingSpace{}, invalid("unknown vehicle class %q", in.VehicleClass)
	}
	if req.ttl == 0 {
		req.ttl = s.defaultTTL
	}
	if req.ttl < 0 || req.ttl > s.maxTTL {
		return domain.ParkingSpace{}, invalid("ttl must be between 1s and %s", s.maxTTL)
	}
	return s.apply(ctx, req)
}

func (s *SpaceLifecycleService) CancelReservation(ctx context.Context, number string) (domain.ParkingSpace, error) {
	req := transitionRequest{
		kind:   TransitionCancelReservation,
		number: normalizeNumber(number),
		reason: domain.ReasonCancelledByUser,
	}
	if req.number == "" {
		return domain.ParkingSpace{}, invalid("space number is required")
	}
	return s.apply(ctx, req)
}

// expireReservation is the sweep's cancellation: same path, reason expired, and only
// while the stored reservation is still past its deadline.
func (s *SpaceLifecycleService) expireReservation(ctx context.Context, number string) (domain.ParkingSpace, error) {
	return s.apply(ctx, transitionRequest{
		kind:        TransitionCancelReservation,
		number:      number,
		reason:      domain.ReasonExpired,
		onlyExpired: true,
	})
}

func (s *SpaceLifecycleService) Occupy(ctx context.Context, in OccupyInput) (domain.ParkingSpace, error) {
	req := transitionRequest{
		kind:         TransitionOccupy,
		number:       normalizeNumber(in.Number),
		sessionID:    strings.TrimSpace(in.SessionID),
		plate:        domain.NormalizePlate(in.Plate),
		vehicleClass: in.VehicleClass,
	}
	if req.number == "" {
		return domain.ParkingSpace{}, invalid("space number is required")
	}
	if req.sessionID == "" {
		return domain.ParkingSpace{}, invalid("session id is required")
	}
	if !req.vehicleClass.Valid() {
		return domain.ParkingSpace{}, invalid("unknown vehicle class %q", in.VehicleClass)
	}
	return s.apply(ctx, req)
}

func (s *SpaceLifecycleService) Free(ctx context.Context, number, sessionID string) (domain.ParkingSpace, error) {
	req := transitionRequest{
		kind:      TransitionFree,
		number:    normalizeNumber(number),
		sessionID: strings.TrimSpace(sessionID),
	}
	if req.number == "" {
		return domain.ParkingSpace{}, invalid("space number is required")
	}
	if req.sessionID == "" {
		return domain.ParkingSpace{}, invalid("session id is required")
	}
	return s.apply(ctx, req)
}

func (s *SpaceLifecycleService) SetOutOfService(ctx context.Context, in OutOfServiceInput) (domain.ParkingSpace, error) {
	req := transitionRequest{
		kind:   TransitionSetOutOfService,
		number: normalizeNumber(in.Number),
		reason: strings.TrimSpace(in.Reason),
		force:  in.Force,
	}
	if req.number == "" {
		return domain.ParkingSpace{}, invalid("space number is required")
	}
	if req.reason == "" {
		return domain.ParkingSpace{}, invalid("reason is required")
	}
	return s.apply(ctx, req)
}

func (s *SpaceLifecycleService) SetInService(ctx context.Context, number string) (domain.ParkingSpace, error) {
	req := transitionRequest{kind: TransitionSetInService, number: normalizeNumber(number)}
	if req.number == "" {
		return domain.ParkingSpace{}, invalid("space number is required")
	}
	return s.apply(ctx, req)
}

// apply runs the read, check, compare-and-swap loop for one transition. A conflicting
// concurrent write makes it re-read and re-check, so the loser sees the winner's state.
func (s *SpaceLifecycleService) apply(ctx context.Context, req transitionRequest) (domain.ParkingSpace, error) {
	ctx, span := s.tracer.Start(ctx, "SpaceLifecycle."+req.kind.String(),
		trace.WithAttributes(attribute.String("parking.space_number", req.number)))
	defer span.End()

	for attempt := 1; ; attempt++ {
		current, err := s.spaces.FindByNumber(ctx, req.number)
		if err != nil {
			return s.fail(span, req, mapStoreError(err, req.number))
		}

		mutation, err := plan(*current, req, s.clock.Now())
		if err != nil {
			return s.fail(span, req, err)
		}

		updated, err := s.spaces.CompareAndSwap(ctx, req.number,
			repository.Expectation{Status: current.Status, Version: current.Version}, mutation)
		if errors.Is(err, repository.ErrConflict) {
			span.AddEvent("cas_conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
			if attempt < maxCASAttempts {
				continue
			}
			return s.fail(span, req, fmt.Errorf("%w: space %s kept changing during %s", domain.ErrStoreUnavailable, req.number, req.kind))
		}
		if err != nil {
			return s.fail(span, req, mapStoreError(err, req.number))
		}

		s.metrics.ObserveTransition(req.kind.String(), metrics.ResultOK)
		span.SetAttributes(attribute.String("parking.status", string(updated.Status)))
		s.afterCommit(ctx, req, *current, *updated)
		return *updated, nil
	}
}

func (s *SpaceLifecycleService) fail(span trace.Span, req transitionRequest, err error) (domain.ParkingSpace, error) {
	result := metrics.ResultError
	if isRejection(err) {
		result = metrics.ResultRejected
	} else {
		span.SetStatus(codes.Error, err.Error())
	}
	span.RecordError(err)
	s.metrics.ObserveTransition(req.kind.String(), result)
	return domain.ParkingSpace{}, err
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrPreconditionFailed) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrPlateRequired) ||
		errors.Is(err, domain.ErrSpaceNotFound) ||
		errors.Is(err, errReservationNotExpired)
}

func mapStoreError(err error, number string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", domain.ErrSpaceNotFound, number)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

// afterCommit notifies the emitter and observers. It runs with no store lock held, on
// a context that outlives the caller's cancellation.
func (s *SpaceLifecycleService) afterCommit(ctx context.Context, req transitionRequest, before, after domain.ParkingSpace) {
	ev := domain.NotificationEvent{
		Kind:         req.kind.NotificationKind(),
		SpaceNumber:  after.Number,
		VehicleClass: after.VehicleClass,
		Timestamp:    after.UpdatedAt,
	}
	switch req.kind {
	case TransitionReserve:
		ev.Plate = after.Reservation.Plate
		ev.VehicleClass = after.Reservation.VehicleClass
		exp := after.Reservation.ExpiresAt
		ev.ExpiresAt = &exp
	case TransitionCancelReservation:
		ev.Reason = req.reason
		if before.Reservation != nil {
			ev.Plate = before.Reservation.Plate
			ev.VehicleClass = before.Reservation.VehicleClass
			exp := before.Reservation.ExpiresAt
			ev.ExpiresAt = &exp
		}
	case TransitionOccupy:
		ev.Plate = req.plate
		ev.VehicleClass = req.vehicleClass
		ev.SessionID = after.CurrentSessionID
	case TransitionFree:
		ev.SessionID = before.CurrentSessionID
	case TransitionSetOutOfService:
		ev.Reason = after.OutOfServiceReason
		if before.Status != domain.StatusFree {
			log.Printf("SpaceLifecycle: space %s forced out of service from %s", after.Number, before.Status)
		}
	case TransitionSetInService:
	}

	emitCtx := context.WithoutCancel(ctx)
	s.emitter.Emit(emitCtx, ev)
	for _, o := range s.observers {
		o.SpaceChanged(ev.Kind, after)
	}
}

func (s *SpaceLifecycleService) GetSpace(ctx context.Context, number string) (domain.ParkingSpace, error) {
	number = normalizeNumber(number)
	if number == "" {
		return domain.ParkingSpace{}, invalid("space number is required")
	}
	space, err := s.spaces.FindByNumber(ctx, number)
	if err != nil {
		return domain.ParkingSpace{}, mapStoreError(err, number)
	}
	return *space, nil
}

func (s *SpaceLifecycleService) ListSpaces(ctx context.Context, filter domain.SpaceFilter) ([]domain.ParkingSpace, error) {
	spaces, err := s.spaces.List(ctx, filter)
	if err != nil {
		return nil, mapStoreError(err, "")
	}
	if spaces == nil {
		spaces = []domain.ParkingSpace{}
	}
	return spaces, nil
}

// Summary counts spaces by status overall and per zone, and refreshes the status gauge.
func (s *SpaceLifecycleService) Summary(ctx context.Context) (domain.SpaceSummary, error) {
	spaces, err := s.spaces.List(ctx, domain.SpaceFilter{})
	if err != nil {
		return domain.SpaceSummary{}, mapStoreError(err, "")
	}
	sum := domain.SpaceSummary{
		Total:    len(spaces),
		ByStatus: make(map[domain.SpaceStatus]int, len(domain.Statuses)),
		ByZone:   make(map[string]map[domain.SpaceStatus]int),
	}
	for _, st := range domain.Statuses {
		sum.ByStatus[st] = 0
	}
	for _, sp := range spaces {
		sum.ByStatus[sp.Status]++
		zone, ok := sum.ByZone[sp.Zone]
		if !ok {
			zone = make(map[domain.SpaceStatus]int, len(domain.Statuses))
			for _, st := range domain.Statuses {
				zone[st] = 0
			}
			sum.ByZone[sp.Zone] = zone
		}
		zone[sp.Status]++
	}

	gauge := make(map[string]int, len(sum.ByStatus))
	for st, n := range sum.ByStatus {
		gauge[string(st)] = n
	}
	s.metrics.SetSpaces(gauge)
	return sum, nil
}
