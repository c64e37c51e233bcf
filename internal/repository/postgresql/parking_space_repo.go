package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"
)

const spaceColumns = `number, zone, vehicle_class, status,
	reservation_plate, reservation_vehicle_class, reservation_created_at, reservation_expires_at,
	current_session_id, out_of_service_reason, version, created_at, updated_at`

type pgParkingSpaceRepository struct {
	db *sql.DB
}

func NewPgParkingSpaceRepository(db *sql.DB) repository.ParkingSpaceRepository {
	return &pgParkingSpaceRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpace(row rowScanner) (domain.ParkingSpace, error) {
	var (
		space                        domain.ParkingSpace
		resPlate, resClass           null.String
		resCreatedAt, resExpiresAt   null.Time
		sessionID, outOfServiceNotes null.String
	)
	err := row.Scan(
		&space.Number, &space.Zone, &space.VehicleClass, &space.Status,
		&resPlate, &resClass, &resCreatedAt, &resExpiresAt,
		&sessionID, &outOfServiceNotes, &space.Version, &space.CreatedAt, &space.UpdatedAt,
	)
	if err != nil {
		return domain.ParkingSpace{}, err
	}
	if resPlate.Valid && resExpiresAt.Valid {
		space.Reservation = &domain.Reservation{
			Plate:        resPlate.String,
			VehicleClass: domain.VehicleClass(resClass.String),
			CreatedAt:    resCreatedAt.Time.In(time.UTC),
			ExpiresAt:    resExpiresAt.Time.In(time.UTC),
		}
	}
	space.CurrentSessionID = sessionID.String
	space.OutOfServiceReason = outOfServiceNotes.String
	space.CreatedAt = space.CreatedAt.In(time.UTC)
	space.UpdatedAt = space.UpdatedAt.In(time.UTC)
	return space, nil
}

func (r *pgParkingSpaceRepository) FindByNumber(ctx context.Context, number string) (*domain.ParkingSpace, error) {
	query := `SELECT ` + spaceColumns + ` FROM parking_spaces WHERE number = $1`
	space, err := scanSpace(r.db.QueryRowContext(ctx, query, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, wrap("ParkingSpaceRepository.FindByNumber", err)
	}
	return &space, nil
}

// CompareAndSwap is a single conditional UPDATE: status and version must still be the
// ones the caller read, so concurrent writers on one space serialise on the row.
func (r *pgParkingSpaceRepository) CompareAndSwap(ctx context.Context, number string, expect repository.Expectation, m repository.SpaceMutation) (*domain.ParkingSpace, error) {
	query := `UPDATE parking_spaces
	           SET status = $3,
	               reservation_plate = $4, reservation_vehicle_class = $5,
	               reservation_created_at = $6, reservation_expires_at = $7,
	               current_session_id = $8, out_of_service_reason = $9,
	               version = version + 1, updated_at = $10
	           WHERE number = $1 AND status = $2 AND version = $11
	           RETURNING ` + spaceColumns

	var resPlate, resClass null.String
	var resCreatedAt, resExpiresAt null.Time
	if m.Reservation != nil {
		resPlate = null.StringFrom(m.Reservation.Plate)
		resClass = null.StringFrom(string(m.Reservation.VehicleClass))
		resCreatedAt = null.TimeFrom(m.Reservation.CreatedAt.UTC())
		resExpiresAt = null.TimeFrom(m.Reservation.ExpiresAt.UTC())
	}

	space, err := scanSpace(r.db.QueryRowContext(ctx, query,
		number, expect.Status, m.Status,
		resPlate, resClass, resCreatedAt, resExpiresAt,
		null.NewString(m.CurrentSessionID, m.CurrentSessionID != ""),
		null.NewString(m.OutOfServiceReason, m.OutOfServiceReason != ""),
		m.UpdatedAt.UTC(), expect.Version,
	))
	if err == nil {
		return &space, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, wrap("ParkingSpaceRepository.CompareAndSwap", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM parking_spaces WHERE number = $1)`, number).Scan(&exists); err != nil {
		return nil, wrap("ParkingSpaceRepository.CompareAndSwap (checking existence)", err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrConflict
}

func (r *pgParkingSpaceRepository) List(ctx context.Context, filter domain.SpaceFilter) ([]domain.ParkingSpace, error) {
	baseQuery := `SELECT ` + spaceColumns + ` FROM parking_spaces`

	var conditions []string
	var args []interface{}
	argID := 1

	if filter.Zone != "" {
		conditions = append(conditions, fmt.Sprintf("UPPER(zone) = UPPER($%d)", argID))
		args = append(args, filter.Zone)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	if filter.VehicleClass != nil {
		conditions = append(conditions, fmt.Sprintf("vehicle_class = $%d", argID))
		args = append(args, *filter.VehicleClass)
		argID++
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY number"

	return r.query(ctx, "ParkingSpaceRepository.List", query, args...)
}

func (r *pgParkingSpaceRepository) ListExpiredReservations(ctx context.Context, now time.Time) ([]domain.ParkingSpace, error) {
	query := `SELECT ` + spaceColumns + ` FROM parking_spaces
	           WHERE status = $1 AND reservation_expires_at <= $2
	           ORDER BY reservation_expires_at ASC`
	return r.query(ctx, "ParkingSpaceRepository.ListExpiredReservations", query, domain.StatusReserved, now.UTC())
}

func (r *pgParkingSpaceRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]domain.ParkingSpace, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var spaces []domain.ParkingSpace
	for rows.Next() {
		space, err := scanSpace(rows)
		if err != nil {
			return nil, wrap(op+" (scanning row)", err)
		}
		spaces = append(spaces, space)
	}
	if err = rows.Err(); err != nil {
		return nil, wrap(op+" (rows error)", err)
	}
	return spaces, nil
}

func (r *pgParkingSpaceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_spaces`).Scan(&n); err != nil {
		return 0, wrap("ParkingSpaceRepository.Count", err)
	}
	return n, nil
}

func (r *pgParkingSpaceRepository) CreateMany(ctx context.Context, spaces []domain.ParkingSpace) error {
	for _, s := range spaces {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("ParkingSpaceRepository.CreateMany: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("ParkingSpaceRepository.CreateMany (begin)", err)
	}
	defer tx.Rollback()

	stmt := `INSERT INTO parking_spaces
	           (number, zone, vehicle_class, status,
	            reservation_plate, reservation_vehicle_class, reservation_created_at, reservation_expires_at,
	            current_session_id, out_of_service_reason, version, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for _, s := range spaces {
		var resPlate, resClass null.String
		var resCreatedAt, resExpiresAt null.Time
		if s.Reservation != nil {
			resPlate = null.StringFrom(s.Reservation.Plate)
			resClass = null.StringFrom(string(s.Reservation.VehicleClass))
			resCreatedAt = null.TimeFrom(s.Reservation.CreatedAt.UTC())
			resExpiresAt = null.TimeFrom(s.Reservation.ExpiresAt.UTC())
		}
		_, err := tx.ExecContext(ctx, stmt,
			s.Number, s.Zone, s.VehicleClass, s.Status,
			resPlate, resClass, resCreatedAt, resExpiresAt,
			null.NewString(s.CurrentSessionID, s.CurrentSessionID != ""),
			null.NewString(s.OutOfServiceReason, s.OutOfServiceReason != ""),
			s.Version, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: space '%s'", repository.ErrDuplicateEntry, s.Number)
			}
			return wrap("ParkingSpaceRepository.CreateMany", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("ParkingSpaceRepository.CreateMany (commit)", err)
	}
	return nil
}

func (r *pgParkingSpaceRepository) DeleteFree(ctx context.Context, numbers []string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("ParkingSpaceRepository.DeleteFree (begin)", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, n := range numbers {
		result, err := tx.ExecContext(ctx, `DELETE FROM parking_spaces WHERE number = $1 AND status = $2`, n, domain.StatusFree)
		if err != nil {
			return 0, wrap("ParkingSpaceRepository.DeleteFree", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return 0, wrap("ParkingSpaceRepository.DeleteFree (checking rows affected)", err)
		}
		deleted += int(rowsAffected)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap("ParkingSpaceRepository.DeleteFree (commit)", err)
	}
	return deleted, nil
}
