// Package repotest holds the behaviour every ParkingSpaceRepository backend must share.
package repotest

import (
	"context"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"
)

// SpaceStoreSuite runs against a fresh store returned by NewStore for every test.
type SpaceStoreSuite struct {
	suite.Suite
	NewStore func() repository.ParkingSpaceRepository

	store repository.ParkingSpaceRepository
	ctx   context.Context
	now   time.Time
}

func (s *SpaceStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.store = s.NewStore()
	s.Require().NoError(s.store.CreateMany(s.ctx, []domain.ParkingSpace{
		s.freeSpace("A001", "A"),
		s.freeSpace("A002", "A"),
		s.freeSpace("B001", "B"),
	}))
}

func (s *SpaceStoreSuite) freeSpace(number, zone string) domain.ParkingSpace {
	return domain.ParkingSpace{
		Number:       number,
		Zone:         zone,
		VehicleClass: domain.VehicleCar,
		Status:       domain.StatusFree,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
}

func (s *SpaceStoreSuite) reserve(number string, version int64, expiresAt time.Time) *domain.ParkingSpace {
	updated, err := s.store.CompareAndSwap(s.ctx, number,
		repository.Expectation{Status: domain.StatusFree, Version: version},
		repository.SpaceMutation{
			Status: domain.StatusReserved,
			Reservation: &domain.Reservation{
				Plate: "TUN1234", VehicleClass: domain.VehicleCar,
				CreatedAt: s.now, ExpiresAt: expiresAt,
			},
			UpdatedAt: s.now,
		})
	s.Require().NoError(err)
	return updated
}

func (s *SpaceStoreSuite) TestFindByNumber() {
	space, err := s.store.FindByNumber(s.ctx, "A001")
	s.Require().NoError(err)
	s.Equal("A", space.Zone)
	s.Equal(domain.StatusFree, space.Status)

	_, err = s.store.FindByNumber(s.ctx, "Z999")
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *SpaceStoreSuite) TestCreateManyRejectsDuplicates() {
	err := s.store.CreateMany(s.ctx, []domain.ParkingSpace{s.freeSpace("A001", "A")})
	s.ErrorIs(err, repository.ErrDuplicateEntry)
}

func (s *SpaceStoreSuite) TestCompareAndSwapAppliesAndBumpsVersion() {
	before, err := s.store.FindByNumber(s.ctx, "A001")
	s.Require().NoError(err)

	updated := s.reserve("A001", before.Version, s.now.Add(30*time.Minute))
	s.Equal(domain.StatusReserved, updated.Status)
	s.Equal(before.Version+1, updated.Version)
	s.Require().NotNil(updated.Reservation)
	s.Equal("TUN1234", updated.Reservation.Plate)

	stored, err := s.store.FindByNumber(s.ctx, "A001")
	s.Require().NoError(err)
	s.Equal(updated.Version, stored.Version)
	s.Require().NotNil(stored.Reservation)
	s.True(stored.Reservation.ExpiresAt.Equal(s.now.Add(30 * time.Minute)))
	s.NoError(stored.Validate())
}

func (s *SpaceStoreSuite) TestCompareAndSwapRejectsStaleExpectation() {
	before, err := s.store.FindByNumber(s.ctx, "A001")
	s.Require().NoError(err)
	s.reserve("A001", before.Version, s.now.Add(time.Minute))

	_, err = s.store.CompareAndSwap(s.ctx, "A001",
		repository.Expectation{Status: domain.StatusFree, Version: before.Version},
		repository.SpaceMutation{Status: domain.StatusOccupied, CurrentSessionID: "s-1", UpdatedAt: s.now})
	s.ErrorIs(err, repository.ErrConflict)

	stored, err := s.store.FindByNumber(s.ctx, "A001")
	s.Require().NoError(err)
	s.Equal(domain.StatusReserved, stored.Status, "failed swap must not write")
}

func (s *SpaceStoreSuite) TestCompareAndSwapUnknownSpace() {
	_, err := s.store.CompareAndSwap(s.ctx, "Z999",
		repository.Expectation{Status: domain.StatusFree},
		repository.SpaceMutation{Status: domain.StatusOccupied, CurrentSessionID: "s-1", UpdatedAt: s.now})
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *SpaceStoreSuite) TestConcurrentSwapsHaveOneWinner() {
	before, err := s.store.FindByNumber(s.ctx, "B001")
	s.Require().NoError(err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.CompareAndSwap(s.ctx, "B001",
				repository.Expectation{Status: domain.StatusFree, Version: before.Version},
				repository.SpaceMutation{Status: domain.StatusOccupied, CurrentSessionID: "s-" + string(rune('a'+i)), UpdatedAt: s.now})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		s.ErrorIs(err, repository.ErrConflict)
	}
	s.Equal(1, wins)
}

func (s *SpaceStoreSuite) TestListFilters() {
	before, err := s.store.FindByNumber(s.ctx, "A002")
	s.Require().NoError(err)
	s.reserve("A002", before.Version, s.now.Add(time.Hour))

	all, err := s.store.List(s.ctx, domain.SpaceFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal("A001", all[0].Number)

	zoneA, err := s.store.List(s.ctx, domain.SpaceFilter{Zone: "A"})
	s.Require().NoError(err)
	s.Len(zoneA, 2)

	reserved := domain.StatusReserved
	onlyReserved, err := s.store.List(s.ctx, domain.SpaceFilter{Status: &reserved})
	s.Require().NoError(err)
	s.Require().Len(onlyReserved, 1)
	s.Equal("A002", onlyReserved[0].Number)
}

func (s *SpaceStoreSuite) TestListExpiredReservations() {
	a1, err := s.store.FindByNumber(s.ctx, "A001")
	s.Require().NoError(err)
	a2, err := s.store.FindByNumber(s.ctx, "A002")
	s.Require().NoError(err)
	s.reserve("A001", a1.Version, s.now.Add(10*time.Minute))
	s.reserve("A002", a2.Version, s.now.Add(20*time.Minute))

	expired, err := s.store.ListExpiredReservations(s.ctx, s.now.Add(5*time.Minute))
	s.Require().NoError(err)
	s.Empty(expired)

	expired, err = s.store.ListExpiredReservations(s.ctx, s.now.Add(10*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(expired, 1, "deadline is inclusive")
	s.Equal("A001", expired[0].Number)

	expired, err = s.store.ListExpiredReservations(s.ctx, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Len(expired, 2)
}

func (s *SpaceStoreSuite) TestCountAndDeleteFree() {
	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	a2, err := s.store.FindByNumber(s.ctx, "A002")
	s.Require().NoError(err)
	s.reserve("A002", a2.Version, s.now.Add(time.Hour))

	deleted, err := s.store.DeleteFree(s.ctx, []string{"A002", "B001"})
	s.Require().NoError(err)
	s.Equal(1, deleted, "reserved space must survive")

	n, err = s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}
