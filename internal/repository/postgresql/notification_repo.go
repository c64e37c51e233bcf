package postgresql

import (
	"context"
	"database/sql"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"time"

	"gopkg.in/guregu/null.v4"
)

type pgNotificationRepository struct {
	db *sql.DB
}

func NewPgNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &pgNotificationRepository{db: db}
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `INSERT INTO notifications
	           (id, kind, space_number, title, message, category, plate, vehicle_class, reason, session_id, expires_at, occurred_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	           ON CONFLICT (id) DO NOTHING`

	ev := n.Event
	var expiresAt null.Time
	if ev.ExpiresAt != nil {
		expiresAt = null.TimeFrom(ev.ExpiresAt.UTC())
	}
	_, err := r.db.ExecContext(ctx, query,
		ev.ID, ev.Kind, ev.SpaceNumber, n.Title, n.Message, n.Category,
		null.NewString(ev.Plate, ev.Plate != ""),
		null.NewString(string(ev.VehicleClass), ev.VehicleClass != ""),
		null.NewString(ev.Reason, ev.Reason != ""),
		null.NewString(ev.SessionID, ev.SessionID != ""),
		expiresAt, ev.Timestamp.UTC(),
	)
	if err != nil {
		return wrap("NotificationRepository.Create", err)
	}
	return nil
}

func (r *pgNotificationRepository) FindRecent(ctx context.Context, spaceNumber string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, space_number, title, message, category, plate, vehicle_class, reason, session_id, expires_at, occurred_at
	           FROM notifications
	           WHERE ($1 = '' OR space_number = $1)
	           ORDER BY occurred_at DESC, created_at DESC
	           LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, spaceNumber, limit)
	if err != nil {
		return nil, wrap("NotificationRepository.FindRecent", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var plate, vehicleClass, reason, sessionID null.String
		var expiresAt null.Time
		if err := rows.Scan(
			&n.Event.ID, &n.Event.Kind, &n.Event.SpaceNumber, &n.Title, &n.Message, &n.Category,
			&plate, &vehicleClass, &reason, &sessionID, &expiresAt, &n.Event.Timestamp,
		); err != nil {
			return nil, wrap("NotificationRepository.FindRecent (scanning row)", err)
		}
		n.Event.Plate = plate.String
		n.Event.VehicleClass = domain.VehicleClass(vehicleClass.String)
		n.Event.Reason = reason.String
		n.Event.SessionID = sessionID.String
		if expiresAt.Valid {
			t := expiresAt.Time.In(time.UTC)
			n.Event.ExpiresAt = &t
		}
		n.Event.Timestamp = n.Event.Timestamp.In(time.UTC)
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, wrap("NotificationRepository.FindRecent (rows error)", err)
	}
	return out, nil
}
