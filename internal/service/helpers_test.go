package service

import (
	"context"
	"parking_lifecycle/internal/clock"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/metrics"
	"parking_lifecycle/internal/repository"
	"parking_lifecycle/internal/repository/memory"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu  sync.Mutex
	got []domain.Notification
	err error
}

func (r *recordingSink) Emit(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingSink) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.got...)
}

func (r *recordingSink) last(t *testing.T) domain.Notification {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all, "no notification emitted")
	return all[len(all)-1]
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []domain.NotificationKind
}

func (o *recordingObserver) SpaceChanged(kind domain.NotificationKind, _ domain.ParkingSpace) {
	o.mu.Lock()
	o.kinds = append(o.kinds, kind)
	o.mu.Unlock()
}

// flakyStore fails the first failCAS compare-and-swap calls with failErr.
type flakyStore struct {
	repository.ParkingSpaceRepository
	mu      sync.Mutex
	failCAS int
	failErr error
	onCAS   func()
}

func (f *flakyStore) CompareAndSwap(ctx context.Context, number string, expect repository.Expectation, m repository.SpaceMutation) (*domain.ParkingSpace, error) {
	f.mu.Lock()
	hook := f.onCAS
	fail := f.failCAS > 0
	if fail {
		f.failCAS--
	}
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return nil, f.failErr
	}
	return f.ParkingSpaceRepository.CompareAndSwap(ctx, number, expect, m)
}

type fixture struct {
	svc      *SpaceLifecycleService
	store    repository.ParkingSpaceRepository
	clock    *clock.Manual
	sink     *recordingSink
	observer *recordingObserver
	metrics  *metrics.Metrics
}

func freeSpace(number, zone string, class domain.VehicleClass) domain.ParkingSpace {
	return domain.ParkingSpace{
		Number: number, Zone: zone, VehicleClass: class, Status: domain.StatusFree,
		CreatedAt: t0, UpdatedAt: t0,
	}
}

func defaultSeed() []domain.ParkingSpace {
	return []domain.ParkingSpace{
		freeSpace("A001", "A", domain.VehicleCar),
		freeSpace("A002", "A", domain.VehicleCar),
		freeSpace("B001", "B", domain.VehicleTruck),
		freeSpace("B002", "B", domain.VehicleTruck),
	}
}

func newFixture(t *testing.T, seed ...domain.ParkingSpace) *fixture {
	t.Helper()
	if len(seed) == 0 {
		seed = defaultSeed()
	}
	return newFixtureWithStore(t, memory.NewParkingSpaceRepository(seed...))
}

func newFixtureWithStore(t *testing.T, store repository.ParkingSpaceRepository) *fixture {
	t.Helper()
	f := &fixture{
		store:    store,
		clock:    clock.NewManual(t0),
		sink:     &recordingSink{},
		observer: &recordingObserver{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	emitter := NewNotificationEmitter(f.sink, f.metrics)
	f.svc = NewSpaceLifecycleService(store, emitter, f.clock,
		WithMetrics(f.metrics),
		WithObserver(f.observer),
		WithReservationTTL(30*time.Minute, 24*time.Hour),
		WithZoneLayout(ZoneLayout{SpacesPerZone: 3, Classes: map[string]domain.VehicleClass{"B": domain.VehicleTruck}}),
	)
	return f
}

// space reads a space straight from the store and checks its structural invariants.
func (f *fixture) space(t *testing.T, number string) domain.ParkingSpace {
	t.Helper()
	sp, err := f.store.FindByNumber(context.Background(), number)
	require.NoError(t, err)
	require.NoError(t, sp.Validate())
	return *sp
}

func (f *fixture) assertAllValid(t *testing.T) {
	t.Helper()
	all, err := f.store.List(context.Background(), domain.SpaceFilter{})
	require.NoError(t, err)
	for _, sp := range all {
		require.NoError(t, sp.Validate(), "space %s", sp.Number)
	}
}
