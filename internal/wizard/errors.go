package wizard

import "errors"

var (
	// ErrSessionNotFound indicates the session ID is unknown or expired.
	ErrSessionNotFound = errors.New("wizard: session not found")
	// ErrSessionClosed indicates the session was confirmed or cancelled.
	ErrSessionClosed = errors.New("wizard: session closed")
	// ErrVehicleUnknown indicates the vehicle is not in the user's list.
	ErrVehicleUnknown = errors.New("wizard: vehicle not in user's fleet")
	// ErrDateInPast rejects availability queries for dates before today.
	ErrDateInPast = errors.New("wizard: date is before today")
	// ErrDateInvalid rejects dates not in YYYY-MM-DD form.
	ErrDateInvalid = errors.New("wizard: invalid date")
	// ErrSlotNotPresented rejects a slot outside the availability set
	// last presented for that exact date.
	ErrSlotNotPresented = errors.New("wizard: slot not in presented availability")
	// ErrSlotQuerySuperseded marks an availability response whose date
	// is no longer the one being displayed; its result must be dropped.
	ErrSlotQuerySuperseded = errors.New("wizard: slot query superseded")
	// ErrConfirmInFlight rejects a second confirm while one is pending.
	ErrConfirmInFlight = errors.New("wizard: confirmation already in flight")
	// ErrDraftIncomplete is the defensive re-check at the submission
	// boundary; the step guards normally make it unreachable.
	ErrDraftIncomplete = errors.New("wizard: draft missing vehicle, date or slot")
	// ErrNotOnSummary rejects confirm from any step but the last.
	ErrNotOnSummary = errors.New("wizard: confirm only allowed from summary step")
)
