// Package bookings records confirmed bookings in Postgres. The unique
// session constraint is the storage-level backstop for the wizard's
// at-most-once submission guarantee.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateSession indicates the session already has a recorded
// booking.
var ErrDuplicateSession = errors.New("bookings: session already recorded")

// ErrNotFound indicates no record matches the lookup.
var ErrNotFound = errors.New("bookings: record not found")

// Record is one confirmed booking as stored locally.
type Record struct {
	ID            uuid.UUID
	SessionID     string
	UserID        string
	PartnerID     string
	ServiceID     string
	VehicleID     string
	ScheduledDate string
	ScheduledTime string
	EndTime       string
	CoreBookingID string
	CustomerNotes string
	CreatedAt     time.Time
}

// Querier is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence helpers for booking records.
type Repository struct {
	db Querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting mocks for tests.
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{db: q}
}

const insertRecordSQL = `
INSERT INTO booking_records (
	id, session_id, user_id, partner_id, service_id, vehicle_id,
	scheduled_date, scheduled_time, end_time, core_booking_id,
	customer_notes, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (session_id) DO NOTHING`

// RecordConfirmed inserts a confirmed booking row. A second insert for
// the same session returns ErrDuplicateSession.
func (r *Repository) RecordConfirmed(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("bookings: record required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx, insertRecordSQL,
		rec.ID, rec.SessionID, rec.UserID, rec.PartnerID, rec.ServiceID,
		rec.VehicleID, rec.ScheduledDate, rec.ScheduledTime, rec.EndTime,
		rec.CoreBookingID, rec.CustomerNotes, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("bookings: insert confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateSession
	}
	return nil
}

const selectRecordSQL = `
SELECT id, session_id, user_id, partner_id, service_id, vehicle_id,
	scheduled_date, scheduled_time, end_time, core_booking_id,
	customer_notes, created_at
FROM booking_records`

// GetBySession returns the record for a wizard session.
func (r *Repository) GetBySession(ctx context.Context, sessionID string) (*Record, error) {
	row := r.db.QueryRow(ctx, selectRecordSQL+" WHERE session_id = $1", sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: load by session: %w", err)
	}
	return rec, nil
}

// ListByUser returns a user's recorded bookings, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, selectRecordSQL+" WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2", userID, limit)
	if err != nil {
		return nil, fmt.Errorf("bookings: list by user: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: list by user: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.UserID, &rec.PartnerID,
		&rec.ServiceID, &rec.VehicleID, &rec.ScheduledDate,
		&rec.ScheduledTime, &rec.EndTime, &rec.CoreBookingID,
		&rec.CustomerNotes, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
