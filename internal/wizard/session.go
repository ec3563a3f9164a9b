package wizard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flotteq/booking-service/internal/fleet"
)

// SlotProvider retrieves the bookable windows for a partner service on
// a date. The fleet client implements it.
type SlotProvider interface {
	ListAvailableSlots(ctx context.Context, partnerID, serviceID, date string, durationMinutes int) ([]fleet.Slot, error)
}

// BookingCreator submits the completed draft. The fleet client
// implements it.
type BookingCreator interface {
	CreateBooking(ctx context.Context, userID string, req fleet.BookingRequest) (*fleet.Booking, error)
}

// State is the externally visible snapshot of a session. It is what
// the HTTP layer renders and what the session store persists.
type State struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	PartnerID       string          `json:"partnerId"`
	ServiceID       string          `json:"serviceId"`
	PartnerName     string          `json:"partnerName"`
	ServiceName     string          `json:"serviceName"`
	DurationMinutes int             `json:"durationMinutes"`
	Step            Step            `json:"step"`
	StepName        string          `json:"stepName"`
	CanAdvance      bool            `json:"canAdvance"`
	Draft           Draft           `json:"draft"`
	Vehicles        []fleet.Vehicle `json:"vehicles"`
	PresentedDate   string          `json:"presentedDate,omitempty"`
	PresentedSlots  []fleet.Slot    `json:"presentedSlots,omitempty"`
	Closed          bool            `json:"closed,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Summary is the read-only recap rendered on the last step.
type Summary struct {
	PartnerName  string `json:"partnerName"`
	ServiceName  string `json:"serviceName"`
	VehicleLabel string `json:"vehicleLabel"`
	Date         string `json:"date"`
	TimeRange    string `json:"timeRange"`
	Notes        string `json:"notes,omitempty"`
}

// Session owns one booking draft and its step for the lifetime of the
// wizard. All mutation goes through the session; callers only ever see
// State snapshots.
type Session struct {
	id              string
	userID          string
	partnerID       string
	serviceID       string
	partnerName     string
	serviceName     string
	durationMinutes int

	mu            sync.Mutex
	step          Step
	draft         Draft
	vehicles      []fleet.Vehicle
	presented     []fleet.Slot
	presentedDate string
	slotGen       uint64
	confirming    bool
	closed        bool
	createdAt     time.Time
	updatedAt     time.Time
}

func newSession(id, userID string, p OpenParams, vehicles []fleet.Vehicle, now time.Time) *Session {
	s := &Session{
		id:              id,
		userID:          userID,
		partnerID:       p.PartnerID,
		serviceID:       p.ServiceID,
		partnerName:     p.PartnerName,
		serviceName:     p.ServiceName,
		durationMinutes: p.DurationMinutes,
		step:            StepVehicle,
		vehicles:        vehicles,
		createdAt:       now,
		updatedAt:       now,
	}
	// A single-vehicle fleet makes the first screen pointless: select
	// it and open directly on slot selection.
	if len(vehicles) == 1 {
		s.draft.VehicleID = vehicles[0].ID
		s.step = StepSlot
	}
	return s
}

func sessionFromState(st *State) *Session {
	return &Session{
		id:              st.ID,
		userID:          st.UserID,
		partnerID:       st.PartnerID,
		serviceID:       st.ServiceID,
		partnerName:     st.PartnerName,
		serviceName:     st.ServiceName,
		durationMinutes: st.DurationMinutes,
		step:            st.Step,
		draft:           st.Draft,
		vehicles:        st.Vehicles,
		presented:       st.PresentedSlots,
		presentedDate:   st.PresentedDate,
		closed:          st.Closed,
		createdAt:       st.CreatedAt,
		updatedAt:       st.UpdatedAt,
	}
}

// State returns a snapshot of the session.
func (s *Session) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() *State {
	vehicles := make([]fleet.Vehicle, len(s.vehicles))
	copy(vehicles, s.vehicles)
	presented := make([]fleet.Slot, len(s.presented))
	copy(presented, s.presented)
	return &State{
		ID:              s.id,
		UserID:          s.userID,
		PartnerID:       s.partnerID,
		ServiceID:       s.serviceID,
		PartnerName:     s.partnerName,
		ServiceName:     s.serviceName,
		DurationMinutes: s.durationMinutes,
		Step:            s.step,
		StepName:        s.step.String(),
		CanAdvance:      CanAdvance(s.step, s.draft),
		Draft:           s.draft,
		Vehicles:        vehicles,
		PresentedDate:   s.presentedDate,
		PresentedSlots:  presented,
		Closed:          s.closed,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
}

// SelectVehicle records the chosen vehicle. It must belong to the
// user's vehicle list loaded at open time.
func (s *Session) SelectVehicle(vehicleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	found := false
	for _, v := range s.vehicles {
		if v.ID == vehicleID {
			found = true
			break
		}
	}
	if !found {
		return ErrVehicleUnknown
	}
	s.draft.VehicleID = vehicleID
	s.touchLocked()
	return nil
}

// LoadSlots fetches availability for date and retains the available
// windows as the presented set. Responses are generation-checked:
// if a newer query was issued (or the session closed) while this one
// was in flight, its result is dropped and ErrSlotQuerySuperseded
// (or ErrSessionClosed) is returned. Displaying a date different from
// the draft's invalidates any slot chosen for the old date.
func (s *Session) LoadSlots(ctx context.Context, provider SlotProvider, date string, today string) ([]fleet.Slot, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, ErrDateInvalid
	}
	if date < today {
		return nil, ErrDateInPast
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.slotGen++
	gen := s.slotGen
	if date != s.draft.Date && s.draft.Slot != nil {
		s.draft.Slot = nil
	}
	s.mu.Unlock()

	slots, err := provider.ListAvailableSlots(ctx, s.partnerID, s.serviceID, date, s.durationMinutes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if gen != s.slotGen {
		return nil, ErrSlotQuerySuperseded
	}
	if err != nil {
		return nil, err
	}

	available := make([]fleet.Slot, 0, len(slots))
	for _, slot := range slots {
		if slot.Available {
			available = append(available, slot)
		}
	}
	s.presented = available
	s.presentedDate = date
	s.touchLocked()
	return available, nil
}

// SelectSlot commits {date, slot} into the draft atomically. The slot
// must be a member of the availability set last presented for that
// exact date; choosing a slot is the only path that advances the
// draft's date/slot pair.
func (s *Session) SelectSlot(date string, slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if date == "" || date != s.presentedDate {
		return ErrSlotNotPresented
	}
	found := false
	for _, p := range s.presented {
		if p.Start == slot.Start && p.End == slot.End {
			found = true
			break
		}
	}
	if !found {
		return ErrSlotNotPresented
	}
	s.draft.Date = date
	s.draft.Slot = &Slot{Start: slot.Start, End: slot.End}
	s.touchLocked()
	return nil
}

// SetNotes updates the free-text notes. Notes stay editable until
// submission.
func (s *Session) SetNotes(notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.draft.Notes = notes
	s.touchLocked()
	return nil
}

// Next attempts a forward step move. A failing guard leaves the step
// unchanged and reports advanced=false; no error is raised because the
// UI disables the action in that case.
func (s *Session) Next() (Step, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.step, false, ErrSessionClosed
	}
	next := Transition(s.step, EventNext, s.draft)
	advanced := next != s.step
	s.step = next
	if advanced {
		s.touchLocked()
	}
	return s.step, advanced, nil
}

// Back moves one step back; previously entered data is preserved.
func (s *Session) Back() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.step, ErrSessionClosed
	}
	s.step = Transition(s.step, EventBack, s.draft)
	s.touchLocked()
	return s.step, nil
}

// Summary builds the read-only recap for the last step. It requires a
// complete draft.
func (s *Session) Summary() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !s.draft.Complete() {
		return nil, ErrDraftIncomplete
	}
	label := s.draft.VehicleID
	for _, v := range s.vehicles {
		if v.ID == s.draft.VehicleID {
			label = v.Label()
			break
		}
	}
	date := s.draft.Date
	if parsed, err := time.Parse("2006-01-02", s.draft.Date); err == nil {
		date = parsed.Format("Monday, 2 January 2006")
	}
	return &Summary{
		PartnerName:  s.partnerName,
		ServiceName:  s.serviceName,
		VehicleLabel: label,
		Date:         date,
		TimeRange:    s.draft.Slot.Start + " - " + s.draft.Slot.End,
		Notes:        s.draft.Notes,
	}, nil
}

// Confirm submits the draft. At most one createBooking call is in
// flight per session; a second confirm while pending is rejected. On
// success the session closes and the draft is cleared; on failure both
// survive so the user can retry without re-entering anything.
func (s *Session) Confirm(ctx context.Context, creator BookingCreator) (*fleet.Booking, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.step != StepSummary {
		s.mu.Unlock()
		return nil, ErrNotOnSummary
	}
	if !s.draft.Complete() {
		s.mu.Unlock()
		return nil, ErrDraftIncomplete
	}
	if s.confirming {
		s.mu.Unlock()
		return nil, ErrConfirmInFlight
	}
	s.confirming = true
	req := fleet.BookingRequest{
		PartnerID:     s.partnerID,
		ServiceID:     s.serviceID,
		VehicleID:     s.draft.VehicleID,
		ScheduledDate: s.draft.Date,
		ScheduledTime: s.draft.Slot.Start,
		EndTime:       s.draft.Slot.End,
		CustomerNotes: strings.TrimSpace(s.draft.Notes),
	}
	userID := s.userID
	s.mu.Unlock()

	booking, err := creator.CreateBooking(ctx, userID, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirming = false
	if err != nil {
		s.touchLocked()
		return nil, err
	}
	if s.closed {
		// Cancelled while the request was in flight; the upstream
		// booking exists but this session applies nothing further.
		return nil, ErrSessionClosed
	}
	s.closed = true
	s.draft = Draft{}
	s.touchLocked()
	return booking, nil
}

// Close cancels the session. In-flight availability responses resolving
// afterwards are dropped by the generation check.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.touchLocked()
}

// Closed reports whether the session was confirmed or cancelled.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now().UTC()
}
