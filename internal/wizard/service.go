package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flotteq/booking-service/internal/bookings"
	"github.com/flotteq/booking-service/internal/fleet"
	"github.com/flotteq/booking-service/internal/observability/metrics"
	"github.com/flotteq/booking-service/pkg/logging"
)

// CoreAPI is the slice of the fleet client the wizard consumes.
type CoreAPI interface {
	ListVehicles(ctx context.Context, userID string) ([]fleet.Vehicle, error)
	ListAvailableSlots(ctx context.Context, partnerID, serviceID, date string, durationMinutes int) ([]fleet.Slot, error)
	CreateBooking(ctx context.Context, userID string, req fleet.BookingRequest) (*fleet.Booking, error)
}

// BookingRecorder persists confirmed bookings; the bookings repository
// implements it. Optional.
type BookingRecorder interface {
	RecordConfirmed(ctx context.Context, rec *bookings.Record) error
}

// OpenParams is the fixed context a wizard session is opened with.
type OpenParams struct {
	PartnerID       string `json:"partnerId"`
	ServiceID       string `json:"serviceId"`
	PartnerName     string `json:"partnerName"`
	ServiceName     string `json:"serviceName"`
	DurationMinutes int    `json:"serviceDuration"`
}

func (p OpenParams) validate() error {
	if p.PartnerID == "" || p.ServiceID == "" {
		return errors.New("wizard: partnerId and serviceId are required")
	}
	if p.DurationMinutes <= 0 {
		return errors.New("wizard: serviceDuration must be positive")
	}
	return nil
}

// Service hosts wizard sessions: a live in-memory registry in front of
// the session store, with the core API as the single upstream.
type Service struct {
	core    CoreAPI
	store   SessionStore
	records BookingRecorder
	metrics *metrics.WizardMetrics
	logger  *logging.Logger
	now     func() time.Time

	mu   sync.Mutex
	live map[string]*Session
}

// NewService creates the wizard service. store and records may be nil
// (sessions then live in process memory only, and no local booking
// record is written).
func NewService(core CoreAPI, store SessionStore, records BookingRecorder, m *metrics.WizardMetrics, logger *logging.Logger) *Service {
	if core == nil {
		panic("wizard: core API client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		core:    core,
		store:   store,
		records: records,
		metrics: m,
		logger:  logger.Component("wizard"),
		now:     func() time.Time { return time.Now().UTC() },
		live:    make(map[string]*Session),
	}
}

// Open starts a session for the user: loads their vehicles, applies the
// single-vehicle skip-ahead, registers and persists the session.
func (s *Service) Open(ctx context.Context, userID string, p OpenParams) (*State, error) {
	if userID == "" {
		return nil, errors.New("wizard: user required")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	start := s.now()
	vehicles, err := s.core.ListVehicles(ctx, userID)
	s.metrics.ObserveUpstreamLatency("list_vehicles", s.now().Sub(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("wizard: load vehicles: %w", err)
	}

	sess := newSession(uuid.NewString(), userID, p, vehicles, s.now())

	s.mu.Lock()
	s.live[sess.id] = sess
	s.mu.Unlock()

	st := sess.State()
	s.persist(ctx, st)
	s.metrics.ObserveSession("opened")
	s.logger.Info("session opened",
		"session_id", sess.id,
		"partner_id", p.PartnerID,
		"service_id", p.ServiceID,
		"vehicles", len(vehicles),
		"step", st.StepName,
	)
	return st, nil
}

// Get returns the current state of a session owned by the user.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (*State, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.State(), nil
}

// SelectVehicle records the vehicle choice.
func (s *Service) SelectVehicle(ctx context.Context, userID, sessionID, vehicleID string) (*State, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SelectVehicle(vehicleID); err != nil {
		return nil, err
	}
	st := sess.State()
	s.persist(ctx, st)
	return st, nil
}

// LoadSlots fetches availability for the date, filtered to available
// windows. Late responses for a superseded date are discarded.
func (s *Service) LoadSlots(ctx context.Context, userID, sessionID, date string) ([]fleet.Slot, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	start := s.now()
	slots, err := sess.LoadSlots(ctx, s.core, date, s.today())
	s.metrics.ObserveUpstreamLatency("list_slots", s.now().Sub(start).Seconds())
	switch {
	case errors.Is(err, ErrSlotQuerySuperseded) || errors.Is(err, ErrSessionClosed):
		s.metrics.ObserveSlotQuery("stale")
		return nil, err
	case err != nil:
		s.metrics.ObserveSlotQuery("error")
		return nil, err
	case len(slots) == 0:
		s.metrics.ObserveSlotQuery("empty")
	default:
		s.metrics.ObserveSlotQuery("ok")
	}

	s.persist(ctx, sess.State())
	return slots, nil
}

// SelectSlot commits {date, slot} into the draft.
func (s *Service) SelectSlot(ctx context.Context, userID, sessionID, date string, slot Slot) (*State, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SelectSlot(date, slot); err != nil {
		return nil, err
	}
	st := sess.State()
	s.persist(ctx, st)
	return st, nil
}

// SetNotes updates the draft's notes.
func (s *Service) SetNotes(ctx context.Context, userID, sessionID, notes string) (*State, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetNotes(notes); err != nil {
		return nil, err
	}
	st := sess.State()
	s.persist(ctx, st)
	return st, nil
}

// Next advances one step when the guard holds; otherwise it is a no-op.
func (s *Service) Next(ctx context.Context, userID, sessionID string) (*State, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, _, err := sess.Next(); err != nil {
		return nil, err
	}
	st := sess.State()
	s.persist(ctx, st)
	return st, nil
}

// Back moves one step back, preserving data.
func (s *Service) Back(ctx context.Context, userID, sessionID string) (*State, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Back(); err != nil {
		return nil, err
	}
	st := sess.State()
	s.persist(ctx, st)
	return st, nil
}

// Summary returns the read-only recap for the last step.
func (s *Service) Summary(ctx context.Context, userID, sessionID string) (*Summary, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Summary()
}

// Confirm submits the draft to the core API and, on success, records
// the booking and disposes of the session.
func (s *Service) Confirm(ctx context.Context, userID, sessionID string) (*fleet.Booking, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	st := sess.State()

	start := s.now()
	booking, err := sess.Confirm(ctx, s.core)
	s.metrics.ObserveUpstreamLatency("create_booking", s.now().Sub(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrConfirmInFlight) || errors.Is(err, ErrDraftIncomplete) || errors.Is(err, ErrNotOnSummary) {
			s.metrics.ObserveConfirm("rejected")
		} else {
			s.metrics.ObserveConfirm("error")
			s.logger.Warn("confirm failed", "session_id", sessionID, "error", err)
		}
		s.persist(ctx, sess.State())
		return nil, err
	}

	s.record(ctx, st, booking)
	s.dispose(ctx, sessionID)
	s.metrics.ObserveConfirm("ok")
	s.metrics.ObserveSession("confirmed")
	s.logger.Info("booking confirmed",
		"session_id", sessionID,
		"booking_id", booking.ID,
		"partner_id", st.PartnerID,
		"vehicle_id", booking.VehicleID,
	)
	return booking, nil
}

// Close cancels the session and discards its draft.
func (s *Service) Close(ctx context.Context, userID, sessionID string) error {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	sess.Close()
	s.dispose(ctx, sessionID)
	s.metrics.ObserveSession("cancelled")
	s.logger.Info("session cancelled", "session_id", sessionID)
	return nil
}

// session resolves a live session, rehydrating from the store after a
// restart. Ownership is checked against the acting user.
func (s *Service) session(ctx context.Context, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	sess, ok := s.live[sessionID]
	s.mu.Unlock()

	if !ok {
		if s.store == nil {
			return nil, ErrSessionNotFound
		}
		st, err := s.store.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if st.Closed {
			// A closed snapshot must never come back to life.
			_ = s.store.Delete(ctx, sessionID)
			return nil, ErrSessionNotFound
		}
		sess = sessionFromState(st)
		s.mu.Lock()
		if existing, raced := s.live[sessionID]; raced {
			sess = existing
		} else {
			s.live[sessionID] = sess
		}
		s.mu.Unlock()
	}

	if sess.userID != userID {
		// Do not leak existence of another user's session.
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// persist writes the snapshot unless the session closed meanwhile;
// re-writing a closed session would resurrect it past dispose and open
// the door to a second upstream submission.
func (s *Service) persist(ctx context.Context, st *State) {
	if s.store == nil || st.Closed {
		return
	}
	if err := s.store.Save(ctx, st); err != nil {
		s.logger.Warn("persist session failed", "session_id", st.ID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, st *State, booking *fleet.Booking) {
	if s.records == nil {
		return
	}
	err := s.records.RecordConfirmed(ctx, &bookings.Record{
		SessionID:     st.ID,
		UserID:        st.UserID,
		PartnerID:     st.PartnerID,
		ServiceID:     st.ServiceID,
		VehicleID:     st.Draft.VehicleID,
		ScheduledDate: st.Draft.Date,
		ScheduledTime: st.Draft.Slot.Start,
		EndTime:       st.Draft.Slot.End,
		CoreBookingID: booking.ID,
		CustomerNotes: st.Draft.Notes,
	})
	if errors.Is(err, bookings.ErrDuplicateSession) {
		s.logger.Warn("booking already recorded for session", "session_id", st.ID)
		return
	}
	if err != nil {
		// The upstream booking exists; a failed local record must not
		// fail the confirmation.
		s.logger.Error("record booking failed", "session_id", st.ID, "error", err)
	}
}

func (s *Service) dispose(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.live, sessionID)
	s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Delete(ctx, sessionID); err != nil {
			s.logger.Warn("delete session failed", "session_id", sessionID, "error", err)
		}
	}
}

func (s *Service) today() string {
	return s.now().Format("2006-01-02")
}
