package postgresql

import (
	"context"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"parking_lifecycle/internal/repository/postgresql/migrations"
	"parking_lifecycle/internal/repository/repotest"
	"parking_lifecycle/internal/testutil"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestPgSpaceStore(t *testing.T) {
	db := testutil.NewPostgresDB(t)
	suite.Run(t, &repotest.SpaceStoreSuite{
		NewStore: func() repository.ParkingSpaceRepository {
			testutil.Truncate(t, db, "parking_spaces")
			return NewPgParkingSpaceRepository(db)
		},
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := testutil.NewPostgresDB(t)
	require.NoError(t, migrations.Apply(context.Background(), db))
}

func TestPgSpaceStore_RejectsInconsistentRow(t *testing.T) {
	db := testutil.NewPostgresDB(t)
	testutil.Truncate(t, db, "parking_spaces")
	_, err := db.Exec(`INSERT INTO parking_spaces (number, zone, vehicle_class, status, version, created_at, updated_at)
	                   VALUES ('A001', 'A', 'car', 'occupied', 0, now(), now())`)
	assert.Error(t, err, "occupied without a session must violate the table constraint")
}

func TestPgNotificationStore(t *testing.T) {
	db := testutil.NewPostgresDB(t)
	testutil.Truncate(t, db, "notifications")
	repo := NewPgNotificationRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	expires := base.Add(30 * time.Minute)
	reserved := &domain.Notification{
		Title: "Space reserved", Message: "Space A001 is reserved for TUN1234.", Category: domain.NotificationCategoryParking,
		Event: domain.NotificationEvent{
			ID: uuid.NewString(), Kind: domain.NotifySpaceReserved, SpaceNumber: "A001",
			Plate: "TUN1234", VehicleClass: domain.VehicleCar, ExpiresAt: &expires, Timestamp: base,
		},
	}
	freed := &domain.Notification{
		Title: "Space free", Message: "Space B001 is free again.", Category: domain.NotificationCategoryParking,
		Event: domain.NotificationEvent{
			ID: uuid.NewString(), Kind: domain.NotifySpaceFreed, SpaceNumber: "B001",
			SessionID: "s1", Timestamp: base.Add(time.Minute),
		},
	}
	require.NoError(t, repo.Create(ctx, reserved))
	require.NoError(t, repo.Create(ctx, freed))
	require.NoError(t, repo.Create(ctx, reserved), "re-delivery of the same id is ignored")

	all, err := repo.FindRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "B001", all[0].Event.SpaceNumber, "newest first")
	assert.Equal(t, "s1", all[0].Event.SessionID)
	assert.Nil(t, all[0].Event.ExpiresAt)

	a001, err := repo.FindRecent(ctx, "A001", 10)
	require.NoError(t, err)
	require.Len(t, a001, 1)
	got := a001[0]
	assert.Equal(t, reserved.Event.ID, got.Event.ID)
	assert.Equal(t, domain.NotifySpaceReserved, got.Event.Kind)
	assert.Equal(t, "TUN1234", got.Event.Plate)
	require.NotNil(t, got.Event.ExpiresAt)
	assert.True(t, got.Event.ExpiresAt.Equal(expires))
	assert.True(t, got.Event.Timestamp.Equal(base))
}
