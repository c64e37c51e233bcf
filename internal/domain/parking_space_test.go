package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParkingSpace_Validate(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	res := &Reservation{Plate: "TUN1234", VehicleClass: VehicleCar, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}

	tests := []struct {
		name    string
		space   ParkingSpace
		wantErr bool
	}{
		{"free", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusFree}, false},
		{"free with reservation", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusFree, Reservation: res}, true},
		{"reserved", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusReserved, Reservation: res}, false},
		{"reserved without reservation", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusReserved}, true},
		{"reserved with inverted window", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusReserved,
			Reservation: &Reservation{Plate: "X", VehicleClass: VehicleCar, CreatedAt: now, ExpiresAt: now}}, true},
		{"occupied", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusOccupied, CurrentSessionID: "s1"}, false},
		{"occupied without session", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusOccupied}, true},
		{"occupied with reservation", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusOccupied, CurrentSessionID: "s1", Reservation: res}, true},
		{"out of service", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusOutOfService, OutOfServiceReason: "maintenance"}, false},
		{"out of service without reason", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: StatusOutOfService}, true},
		{"unknown status", ParkingSpace{Number: "A001", VehicleClass: VehicleCar, Status: "broken"}, true},
		{"unknown class", ParkingSpace{Number: "A001", VehicleClass: "bus", Status: StatusFree}, true},
		{"empty number", ParkingSpace{VehicleClass: VehicleCar, Status: StatusFree}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.space.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReservation_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	r := Reservation{CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute)}

	assert.False(t, r.Expired(now.Add(29*time.Minute)))
	assert.True(t, r.Expired(now.Add(30*time.Minute)), "expiry is inclusive of the deadline")
	assert.True(t, r.Expired(now.Add(31*time.Minute)))
}

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "TUN1234", NormalizePlate(" tun-12 34 "))
	assert.Equal(t, "29A12345", NormalizePlate("29A-123.45"))
	assert.Equal(t, "", NormalizePlate("  "))
}

func TestParseEnums(t *testing.T) {
	s, err := ParseSpaceStatus(" Reserved ")
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, s)

	_, err = ParseSpaceStatus("parked")
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err := ParseVehicleClass("TRUCK")
	require.NoError(t, err)
	assert.Equal(t, VehicleTruck, c)

	_, err = ParseVehicleClass("bus")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPreconditionErrors(t *testing.T) {
	all := []error{ErrNotAvailable, ErrNotReserved, ErrPlateMismatch, ErrSessionMismatch, ErrNotOccupied, ErrNotEligible, ErrNotOutOfService}
	for _, e := range all {
		assert.ErrorIs(t, e, ErrPreconditionFailed)
		assert.NotEmpty(t, PreconditionCode(e))
	}

	wrapped := errors.Join(errors.New("context"), ErrPlateMismatch)
	assert.ErrorIs(t, wrapped, ErrPlateMismatch)
	assert.Equal(t, "plate_mismatch", PreconditionCode(wrapped))
	assert.NotErrorIs(t, ErrNotAvailable, ErrNotReserved)
	assert.Empty(t, PreconditionCode(ErrStoreUnavailable))
}

func TestSpaceFilter_Matches(t *testing.T) {
	reserved := StatusReserved
	truck := VehicleTruck
	space := ParkingSpace{Number: "B002", Zone: "B", VehicleClass: VehicleTruck, Status: StatusReserved}

	assert.True(t, SpaceFilter{}.Matches(space))
	assert.True(t, SpaceFilter{Zone: "b", Status: &reserved, VehicleClass: &truck}.Matches(space))
	assert.False(t, SpaceFilter{Zone: "A"}.Matches(space))
	free := StatusFree
	assert.False(t, SpaceFilter{Status: &free}.Matches(space))
}
