package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newTestRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepositoryWithQuerier(mock), mock
}

func TestRecordConfirmed(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(`INSERT INTO booking_records`).
		WithArgs(
			pgxmock.AnyArg(), "sess-1", "user-1", "p1", "s1", "v1",
			"2025-03-11", "14:00", "14:30", "b1", "", pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.RecordConfirmed(context.Background(), &Record{
		SessionID:     "sess-1",
		UserID:        "user-1",
		PartnerID:     "p1",
		ServiceID:     "s1",
		VehicleID:     "v1",
		ScheduledDate: "2025-03-11",
		ScheduledTime: "14:00",
		EndTime:       "14:30",
		CoreBookingID: "b1",
	})
	if err != nil {
		t.Fatalf("RecordConfirmed error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordConfirmed_DuplicateSession(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(`INSERT INTO booking_records`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := repo.RecordConfirmed(context.Background(), &Record{SessionID: "sess-1"})
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestGetBySession(t *testing.T) {
	repo, mock := newTestRepo(t)

	id := uuid.New()
	created := time.Now().UTC()
	cols := []string{
		"id", "session_id", "user_id", "partner_id", "service_id",
		"vehicle_id", "scheduled_date", "scheduled_time", "end_time",
		"core_booking_id", "customer_notes", "created_at",
	}
	mock.ExpectQuery(`FROM booking_records WHERE session_id`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			id, "sess-1", "user-1", "p1", "s1", "v1",
			"2025-03-11", "14:00", "14:30", "b1", "brakes squeak", created,
		))

	rec, err := repo.GetBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetBySession error: %v", err)
	}
	if rec.ID != id || rec.CoreBookingID != "b1" || rec.CustomerNotes != "brakes squeak" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestGetBySession_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	cols := []string{
		"id", "session_id", "user_id", "partner_id", "service_id",
		"vehicle_id", "scheduled_date", "scheduled_time", "end_time",
		"core_booking_id", "customer_notes", "created_at",
	}
	mock.ExpectQuery(`FROM booking_records WHERE session_id`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(cols))

	_, err := repo.GetBySession(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	repo, mock := newTestRepo(t)

	cols := []string{
		"id", "session_id", "user_id", "partner_id", "service_id",
		"vehicle_id", "scheduled_date", "scheduled_time", "end_time",
		"core_booking_id", "customer_notes", "created_at",
	}
	mock.ExpectQuery(`FROM booking_records WHERE user_id`).
		WithArgs("user-1", 50).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.New(), "sess-2", "user-1", "p1", "s1", "v1", "2025-03-12", "09:00", "09:30", "b2", "", time.Now().UTC()).
			AddRow(uuid.New(), "sess-1", "user-1", "p1", "s1", "v1", "2025-03-11", "14:00", "14:30", "b1", "", time.Now().UTC()))

	records, err := repo.ListByUser(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(records) != 2 || records[0].SessionID != "sess-2" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
