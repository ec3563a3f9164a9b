package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flotteq/booking-service/internal/bookings"
	"github.com/flotteq/booking-service/internal/fleet"
)

// fakeCore is an in-memory CoreAPI.
type fakeCore struct {
	vehicles    []fleet.Vehicle
	vehiclesErr error
	slots       map[string][]fleet.Slot
	slotsErr    error
	bookings    []fleet.BookingRequest
	bookingErr  error
}

func (f *fakeCore) ListVehicles(ctx context.Context, userID string) ([]fleet.Vehicle, error) {
	if f.vehiclesErr != nil {
		return nil, f.vehiclesErr
	}
	return f.vehicles, nil
}

func (f *fakeCore) ListAvailableSlots(ctx context.Context, partnerID, serviceID, date string, durationMinutes int) ([]fleet.Slot, error) {
	if f.slotsErr != nil {
		return nil, f.slotsErr
	}
	return f.slots[date], nil
}

func (f *fakeCore) CreateBooking(ctx context.Context, userID string, req fleet.BookingRequest) (*fleet.Booking, error) {
	if f.bookingErr != nil {
		return nil, f.bookingErr
	}
	f.bookings = append(f.bookings, req)
	return &fleet.Booking{ID: "bk-1", Status: "confirmed", VehicleID: req.VehicleID}, nil
}

// fakeRecorder captures recorded bookings.
type fakeRecorder struct {
	records []*bookings.Record
	err     error
}

func (f *fakeRecorder) RecordConfirmed(ctx context.Context, rec *bookings.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func newTestCore() *fakeCore {
	return &fakeCore{
		vehicles: testVehicles,
		slots: map[string][]fleet.Slot{
			"2026-09-02": {
				{Start: "09:00", End: "10:00", Available: true},
				{Start: "10:00", End: "11:00", Available: false},
			},
			"2026-09-03": {
				{Start: "14:00", End: "15:00", Available: true},
			},
		},
	}
}

func newTestService(core CoreAPI, store SessionStore, rec BookingRecorder) *Service {
	svc := NewService(core, store, rec, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestService_FullFlow(t *testing.T) {
	core := newTestCore()
	store := NewInMemoryStore()
	recorder := &fakeRecorder{}
	svc := newTestService(core, store, recorder)
	ctx := context.Background()

	st, err := svc.Open(ctx, "user-1", testParams)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st.Step != StepVehicle || len(st.Vehicles) != 2 {
		t.Fatalf("unexpected open state: step=%v vehicles=%d", st.Step, len(st.Vehicles))
	}

	if _, err := svc.SelectVehicle(ctx, "user-1", st.ID, "veh-1"); err != nil {
		t.Fatalf("select vehicle: %v", err)
	}
	if st, err = svc.Next(ctx, "user-1", st.ID); err != nil || st.Step != StepSlot {
		t.Fatalf("next to slot: step=%v err=%v", st.Step, err)
	}

	slots, err := svc.LoadSlots(ctx, "user-1", st.ID, "2026-09-02")
	if err != nil {
		t.Fatalf("load slots: %v", err)
	}
	if len(slots) != 1 || slots[0].Start != "09:00" {
		t.Fatalf("expected the single available slot, got %+v", slots)
	}

	if _, err := svc.SelectSlot(ctx, "user-1", st.ID, "2026-09-02", Slot{Start: "09:00", End: "10:00"}); err != nil {
		t.Fatalf("select slot: %v", err)
	}
	if _, err := svc.SetNotes(ctx, "user-1", st.ID, "squeaky brakes"); err != nil {
		t.Fatalf("set notes: %v", err)
	}
	if st, err = svc.Next(ctx, "user-1", st.ID); err != nil || st.Step != StepSummary {
		t.Fatalf("next to summary: step=%v err=%v", st.Step, err)
	}

	sum, err := svc.Summary(ctx, "user-1", st.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.VehicleLabel != "Renault Clio (AB-123-CD)" || sum.TimeRange != "09:00 - 10:00" {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	booking, err := svc.Confirm(ctx, "user-1", st.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if booking.ID != "bk-1" {
		t.Fatalf("unexpected booking: %+v", booking)
	}
	if len(core.bookings) != 1 {
		t.Fatalf("expected exactly one upstream booking, got %d", len(core.bookings))
	}
	if len(recorder.records) != 1 {
		t.Fatalf("expected one booking record, got %d", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.SessionID != st.ID || rec.CoreBookingID != "bk-1" || rec.ScheduledTime != "09:00" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// The session is gone afterwards.
	if _, err := svc.Get(ctx, "user-1", st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after confirm, got %v", err)
	}
	if _, err := store.Load(ctx, st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected the persisted snapshot deleted, got %v", err)
	}
}

func TestService_Open_SingleVehicleSkip(t *testing.T) {
	core := newTestCore()
	core.vehicles = testVehicles[:1]
	svc := newTestService(core, nil, nil)

	st, err := svc.Open(context.Background(), "user-1", testParams)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st.Step != StepSlot || st.Draft.VehicleID != "veh-1" {
		t.Fatalf("expected skip-ahead with preselected vehicle, got %+v", st)
	}
}

func TestService_Open_ValidatesParams(t *testing.T) {
	svc := newTestService(newTestCore(), nil, nil)
	if _, err := svc.Open(context.Background(), "user-1", OpenParams{PartnerID: "p"}); err == nil {
		t.Fatal("expected error for missing service")
	}
	if _, err := svc.Open(context.Background(), "", testParams); err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestService_SessionOwnership(t *testing.T) {
	svc := newTestService(newTestCore(), NewInMemoryStore(), nil)
	ctx := context.Background()

	st, err := svc.Open(ctx, "user-1", testParams)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Get(ctx, "user-2", st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not-found for another user's session, got %v", err)
	}
}

func TestService_RehydratesFromStore(t *testing.T) {
	core := newTestCore()
	store := NewInMemoryStore()
	svc := newTestService(core, store, nil)
	ctx := context.Background()

	st, err := svc.Open(ctx, "user-1", testParams)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.SelectVehicle(ctx, "user-1", st.ID, "veh-2"); err != nil {
		t.Fatalf("select vehicle: %v", err)
	}

	// A fresh service instance with the same store picks the session up.
	svc2 := newTestService(core, store, nil)
	got, err := svc2.Get(ctx, "user-1", st.ID)
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if got.Draft.VehicleID != "veh-2" {
		t.Fatalf("expected rehydrated draft, got %+v", got.Draft)
	}
}

func TestService_LoadSlots_PastDate(t *testing.T) {
	svc := newTestService(newTestCore(), nil, nil)
	ctx := context.Background()

	st, err := svc.Open(ctx, "user-1", testParams)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.LoadSlots(ctx, "user-1", st.ID, "2026-08-30"); !errors.Is(err, ErrDateInPast) {
		t.Fatalf("expected ErrDateInPast, got %v", err)
	}
}

func TestService_Confirm_DuplicateRecordIgnored(t *testing.T) {
	core := newTestCore()
	recorder := &fakeRecorder{err: bookings.ErrDuplicateSession}
	svc := newTestService(core, NewInMemoryStore(), recorder)
	ctx := context.Background()

	st := openCompleteSession(t, svc, core)
	if _, err := svc.Confirm(ctx, "user-1", st.ID); err != nil {
		t.Fatalf("confirm must succeed despite a duplicate record: %v", err)
	}
}

func TestService_Confirm_UpstreamErrorSurfaced(t *testing.T) {
	core := newTestCore()
	core.bookingErr = &fleet.APIError{StatusCode: 409, Message: "Slot no longer available"}
	svc := newTestService(core, NewInMemoryStore(), nil)
	ctx := context.Background()

	st := openCompleteSession(t, svc, core)
	_, err := svc.Confirm(ctx, "user-1", st.ID)
	var apiErr *fleet.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected upstream APIError, got %v", err)
	}

	// The session survives for a retry.
	got, err := svc.Get(ctx, "user-1", st.ID)
	if err != nil {
		t.Fatalf("get after failed confirm: %v", err)
	}
	if !got.Draft.Complete() {
		t.Fatalf("draft must stay complete for a retry: %+v", got.Draft)
	}
}

// blockingCore delays CreateBooking until released and counts calls.
type blockingCore struct {
	*fakeCore
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCore) CreateBooking(ctx context.Context, userID string, req fleet.BookingRequest) (*fleet.Booking, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.entered)
		<-b.release
	}
	return b.fakeCore.CreateBooking(ctx, userID, req)
}

func TestService_CancelDuringConfirm(t *testing.T) {
	core := &blockingCore{
		fakeCore: newTestCore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	store := NewInMemoryStore()
	svc := newTestService(core, store, nil)
	ctx := context.Background()

	st := openCompleteSession(t, svc, core.fakeCore)

	var (
		wg         sync.WaitGroup
		confirmErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, confirmErr = svc.Confirm(ctx, "user-1", st.ID)
	}()

	<-core.entered
	if err := svc.Close(ctx, "user-1", st.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(core.release)
	wg.Wait()

	if !errors.Is(confirmErr, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed from the raced confirm, got %v", confirmErr)
	}

	// The cancelled session must stay gone: not reachable, not
	// resurrected in the store, no second upstream submission.
	if _, err := svc.Get(ctx, "user-1", st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("cancelled session is reachable again: err=%v", err)
	}
	if _, err := store.Load(ctx, st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("cancelled snapshot written back to the store: err=%v", err)
	}
	if _, err := svc.Confirm(ctx, "user-1", st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on re-confirm, got %v", err)
	}
	core.mu.Lock()
	calls := core.calls
	core.mu.Unlock()
	if calls != 1 {
		t.Fatalf("createBooking called %d times for one user confirmation", calls)
	}
}

func TestService_ClosedSnapshotNotRehydrated(t *testing.T) {
	store := NewInMemoryStore()
	svc := newTestService(newTestCore(), store, nil)
	ctx := context.Background()

	closed := testState()
	closed.Closed = true
	if err := store.Save(ctx, closed); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if _, err := svc.Get(ctx, "user-1", closed.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for a closed snapshot, got %v", err)
	}
}

func TestService_Close(t *testing.T) {
	svc := newTestService(newTestCore(), NewInMemoryStore(), nil)
	ctx := context.Background()

	st, err := svc.Open(ctx, "user-1", testParams)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := svc.Close(ctx, "user-1", st.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Get(ctx, "user-1", st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after close, got %v", err)
	}
}

// openCompleteSession drives a session to the summary step.
func openCompleteSession(t *testing.T, svc *Service, core *fakeCore) *State {
	t.Helper()
	ctx := context.Background()
	st, err := svc.Open(ctx, "user-1", testParams)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.SelectVehicle(ctx, "user-1", st.ID, "veh-1"); err != nil {
		t.Fatalf("select vehicle: %v", err)
	}
	if _, err := svc.Next(ctx, "user-1", st.ID); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := svc.LoadSlots(ctx, "user-1", st.ID, "2026-09-02"); err != nil {
		t.Fatalf("load slots: %v", err)
	}
	if _, err := svc.SelectSlot(ctx, "user-1", st.ID, "2026-09-02", Slot{Start: "09:00", End: "10:00"}); err != nil {
		t.Fatalf("select slot: %v", err)
	}
	st, err = svc.Next(ctx, "user-1", st.ID)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if st.Step != StepSummary {
		t.Fatalf("expected summary step, got %v", st.Step)
	}
	return st
}
