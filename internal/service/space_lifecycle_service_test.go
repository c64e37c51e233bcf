package service

import (
	"context"
	"fmt"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/metrics"
	"parking_lifecycle/internal/repository"
	"parking_lifecycle/internal/repository/memory"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveThenCancel_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reserved, err := f.svc.Reserve(ctx, ReserveInput{Number: "A001", Plate: "tun 1234", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, reserved.Status)
	require.NotNil(t, reserved.Reservation)
	assert.Equal(t, "TUN1234", reserved.Reservation.Plate)
	assert.Equal(t, t0.Add(30*time.Minute), reserved.Reservation.ExpiresAt)
	assert.Equal(t, int64(1), reserved.Version)
	f.assertAllValid(t)

	freed, err := f.svc.CancelReservation(ctx, "A001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFree, freed.Status)
	assert.Nil(t, freed.Reservation)
	assert.Equal(t, int64(2), freed.Version)
	f.assertAllValid(t)

	notes := f.sink.all()
	require.Len(t, notes, 2)
	assert.Equal(t, domain.NotifySpaceReserved, notes[0].Event.Kind)
	assert.Equal(t, domain.NotifyReservationCancelled, notes[1].Event.Kind)
	assert.Equal(t, domain.ReasonCancelledByUser, notes[1].Event.Reason)
	assert.Equal(t, "TUN1234", notes[1].Event.Plate)
	assert.Equal(t, domain.NotificationCategoryParking, notes[1].Category)
	assert.NotEmpty(t, notes[0].Event.ID)
	assert.Equal(t, []domain.NotificationKind{domain.NotifySpaceReserved, domain.NotifyReservationCancelled}, f.observer.kinds)
}

func TestReserve_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, ReserveInput{Number: "A001", Plate: "X1", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, ReserveInput{Number: "A001", Plate: "X2", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
	assert.Equal(t, "X1", f.space(t, "A001").Reservation.Plate)

	_, err = f.svc.Reserve(ctx, ReserveInput{Number: "Z999", Plate: "X1", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrSpaceNotFound)

	tests := []struct {
		name string
		in   ReserveInput
	}{
		{"no number", ReserveInput{Plate: "X1", VehicleClass: domain.VehicleCar}},
		{"no plate", ReserveInput{Number: "A002", Plate: " - ", VehicleClass: domain.VehicleCar}},
		{"unknown class", ReserveInput{Number: "A002", Plate: "X1", VehicleClass: "bus"}},
		{"negative ttl", ReserveInput{Number: "A002", Plate: "X1", VehicleClass: domain.VehicleCar, TTL: -time.Second}},
		{"ttl above max", ReserveInput{Number: "A002", Plate: "X1", VehicleClass: domain.VehicleCar, TTL: 25 * time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reserve(ctx, tt.in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Equal(t, domain.StatusFree, f.space(t, "A002").Status)
		})
	}
	assert.Len(t, f.sink.all(), 1)
}

func TestCancelReservation_NotReserved(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CancelReservation(context.Background(), "A001")
	assert.ErrorIs(t, err, domain.ErrNotReserved)
	assert.Empty(t, f.sink.all())
}

func TestOccupy_ConcurrentRaceHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const racers = 16

	var wg sync.WaitGroup
	errs := make([]error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Occupy(ctx, OccupyInput{
				Number: "A001", SessionID: fmt.Sprintf("s-%d", i), VehicleClass: domain.VehicleCar,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	winner := ""
	for i, err := range errs {
		if err == nil {
			winners++
			winner = fmt.Sprintf("s-%d", i)
			continue
		}
		assert.ErrorIs(t, err, domain.ErrNotAvailable)
	}
	require.Equal(t, 1, winners)

	sp := f.space(t, "A001")
	assert.Equal(t, domain.StatusOccupied, sp.Status)
	assert.Equal(t, winner, sp.CurrentSessionID)
	assert.Len(t, f.sink.all(), 1)
}

func TestOccupy_ReservedSpace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, ReserveInput{Number: "A001", Plate: "TUN1234", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)

	_, err = f.svc.Occupy(ctx, OccupyInput{Number: "A001", SessionID: "s1", Plate: "TUN9999", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrPlateMismatch)
	assert.Equal(t, "plate_mismatch", domain.PreconditionCode(err))
	assert.Equal(t, domain.StatusReserved, f.space(t, "A001").Status)

	_, err = f.svc.Occupy(ctx, OccupyInput{Number: "A001", SessionID: "s1", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrPlateRequired)
	assert.Equal(t, domain.StatusReserved, f.space(t, "A001").Status)

	occupied, err := f.svc.Occupy(ctx, OccupyInput{Number: "a001", SessionID: "s1", Plate: "tun-1234", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOccupied, occupied.Status)
	assert.Nil(t, occupied.Reservation)
	assert.Equal(t, "s1", occupied.CurrentSessionID)

	last := f.sink.last(t)
	assert.Equal(t, domain.NotifySpaceOccupied, last.Event.Kind)
	assert.Equal(t, "s1", last.Event.SessionID)
	assert.Equal(t, "TUN1234", last.Event.Plate)
}

func TestOccupy_NotAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Occupy(ctx, OccupyInput{Number: "A001", SessionID: "s1", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)
	_, err = f.svc.Occupy(ctx, OccupyInput{Number: "A001", SessionID: "s1", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrNotAvailable, "repeating a transition is rejected")

	_, err = f.svc.SetOutOfService(ctx, OutOfServiceInput{Number: "A002", Reason: "maintenance"})
	require.NoError(t, err)
	_, err = f.svc.Occupy(ctx, OccupyInput{Number: "A002", SessionID: "s2", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrNotAvailable)

	_, err = f.svc.Occupy(ctx, OccupyInput{Number: "B001", VehicleClass: domain.VehicleTruck})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.Occupy(ctx, OccupyInput{Number: "B001", SessionID: "s3"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFree_StaleSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Occupy(ctx, OccupyInput{Number: "A001", SessionID: "S1", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)
	_, err = f.svc.Free(ctx, "A001", "S1")
	require.NoError(t, err)
	_, err = f.svc.Occupy(ctx, OccupyInput{Number: "A001", SessionID: "S2", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)

	_, err = f.svc.Free(ctx, "A001", "S1")
	assert.ErrorIs(t, err, domain.ErrSessionMismatch)
	sp := f.space(t, "A001")
	assert.Equal(t, domain.StatusOccupied, sp.Status)
	assert.Equal(t, "S2", sp.CurrentSessionID)

	freed, err := f.svc.Free(ctx, "A001", "S2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFree, freed.Status)
	assert.Empty(t, freed.CurrentSessionID)
	assert.Equal(t, "S2", f.sink.last(t).Event.SessionID)

	_, err = f.svc.Free(ctx, "A001", "S2")
	assert.ErrorIs(t, err, domain.ErrNotOccupied)
}

func TestOutOfService_WhileOccupiedIsNotEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Occupy(ctx, OccupyInput{Number: "B002", SessionID: "s1", VehicleClass: domain.VehicleTruck})
	require.NoError(t, err)
	before := f.space(t, "B002")
	emitted := len(f.sink.all())

	_, err = f.svc.SetOutOfService(ctx, OutOfServiceInput{Number: "B002", Reason: "maintenance"})
	assert.ErrorIs(t, err, domain.ErrNotEligible)
	assert.Equal(t, before, f.space(t, "B002"), "state unchanged")
	assert.Len(t, f.sink.all(), emitted)
}

func TestOutOfService_ForcedOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, ReserveInput{Number: "A001", Plate: "TUN1234", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)

	sp, err := f.svc.SetOutOfService(ctx, OutOfServiceInput{Number: "A001", Reason: "flooded", Force: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfService, sp.Status)
	assert.Nil(t, sp.Reservation)
	assert.Equal(t, "flooded", sp.OutOfServiceReason)
	assert.Equal(t, "flooded", f.sink.last(t).Event.Reason)

	_, err = f.svc.SetOutOfService(ctx, OutOfServiceInput{Number: "A001", Reason: "still flooded", Force: true})
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	back, err := f.svc.SetInService(ctx, "A001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFree, back.Status)
	assert.Empty(t, back.OutOfServiceReason)
	assert.Equal(t, domain.NotifySpaceInService, f.sink.last(t).Event.Kind)

	_, err = f.svc.SetInService(ctx, "A001")
	assert.ErrorIs(t, err, domain.ErrNotOutOfService)

	_, err = f.svc.SetOutOfService(ctx, OutOfServiceInput{Number: "A001", Reason: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestApply_RetriesOnConflict(t *testing.T) {
	store := &flakyStore{
		ParkingSpaceRepository: memory.NewParkingSpaceRepository(defaultSeed()...),
		failCAS:                2,
		failErr:                repository.ErrConflict,
	}
	f := newFixtureWithStore(t, store)

	sp, err := f.svc.Occupy(context.Background(), OccupyInput{Number: "A001", SessionID: "s1", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOccupied, sp.Status)
}

func TestApply_ReevaluatesAfterConflict(t *testing.T) {
	inner := memory.NewParkingSpaceRepository(defaultSeed()...)
	store := &flakyStore{ParkingSpaceRepository: inner, failCAS: 1, failErr: repository.ErrConflict}
	f := newFixtureWithStore(t, store)

	// A concurrent occupant lands between our read and our write.
	var once sync.Once
	store.onCAS = func() {
		once.Do(func() {
			cur, err := inner.FindByNumber(context.Background(), "A001")
			require.NoError(t, err)
			_, err = inner.CompareAndSwap(context.Background(), "A001",
				repository.Expectation{Status: cur.Status, Version: cur.Version},
				repository.SpaceMutation{Status: domain.StatusOccupied, CurrentSessionID: "other", UpdatedAt: t0})
			require.NoError(t, err)
		})
	}

	_, err := f.svc.Occupy(context.Background(), OccupyInput{Number: "A001", SessionID: "mine", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
	assert.Equal(t, "other", f.space(t, "A001").CurrentSessionID)
}

func TestApply_StoreUnavailable(t *testing.T) {
	store := &flakyStore{
		ParkingSpaceRepository: memory.NewParkingSpaceRepository(defaultSeed()...),
		failCAS:                1,
		failErr:                fmt.Errorf("%w: connection refused", repository.ErrUnavailable),
	}
	f := newFixtureWithStore(t, store)

	_, err := f.svc.Reserve(context.Background(), ReserveInput{Number: "A001", Plate: "X1", VehicleClass: domain.VehicleCar})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, domain.StatusFree, f.space(t, "A001").Status)
	assert.Empty(t, f.sink.all())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("reserve", metrics.ResultError)))
}

func TestApply_SinkFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.sink.err = domain.ErrSinkUnavailable

	sp, err := f.svc.Reserve(context.Background(), ReserveInput{Number: "A001", Plate: "X1", VehicleClass: domain.VehicleCar})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, sp.Status)
	assert.Equal(t, domain.StatusReserved, f.space(t, "A001").Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues(metrics.ResultError)))
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, ReserveInput{Number: "B001", Plate: "X1", VehicleClass: domain.VehicleTruck})
	require.NoError(t, err)

	sp, err := f.svc.GetSpace(ctx, " b001 ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, sp.Status)

	_, err = f.svc.GetSpace(ctx, "C001")
	assert.ErrorIs(t, err, domain.ErrSpaceNotFound)

	reserved := domain.StatusReserved
	list, err := f.svc.ListSpaces(ctx, domain.SpaceFilter{Status: &reserved})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "B001", list[0].Number)

	none, err := f.svc.ListSpaces(ctx, domain.SpaceFilter{Zone: "Q"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	sum, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 3, sum.ByStatus[domain.StatusFree])
	assert.Equal(t, 1, sum.ByStatus[domain.StatusReserved])
	assert.Equal(t, 0, sum.ByStatus[domain.StatusOccupied])
	assert.Equal(t, 1, sum.ByZone["B"][domain.StatusReserved])
	assert.Equal(t, 2, sum.ByZone["A"][domain.StatusFree])
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.Spaces.WithLabelValues("free")))
}

func TestTransitionKind_Closed(t *testing.T) {
	kinds := []TransitionKind{
		TransitionReserve, TransitionCancelReservation, TransitionOccupy,
		TransitionFree, TransitionSetOutOfService, TransitionSetInService,
	}
	for _, k := range kinds {
		assert.NotEmpty(t, k.NotificationKind(), k.String())
	}
	_, err := plan(freeSpace("A001", "A", domain.VehicleCar), transitionRequest{kind: TransitionKind(99)}, t0)
	assert.Error(t, err)
	assert.Equal(t, "transition(99)", TransitionKind(99).String())
}
