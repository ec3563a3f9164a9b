// Package wizard implements the garage-booking wizard: a three-step
// flow (vehicle, date/slot, summary) that accumulates a booking draft
// and submits it to the core API exactly once on confirmation.
package wizard

// Step is one screen of the booking wizard. Steps are totally ordered.
type Step int

const (
	StepVehicle Step = iota + 1
	StepSlot
	StepSummary
)

func (s Step) String() string {
	switch s {
	case StepVehicle:
		return "vehicle"
	case StepSlot:
		return "slot"
	case StepSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Event is a step-transition request.
type Event int

const (
	EventNext Event = iota
	EventBack
)

// Slot is a chosen time window, "HH:MM" on the draft's date.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Draft is the accumulating state of the wizard. Slot is only
// meaningful together with Date; the two are committed atomically and
// a date change invalidates a slot chosen for another date.
type Draft struct {
	VehicleID string `json:"vehicleId,omitempty"`
	Date      string `json:"date,omitempty"`
	Slot      *Slot  `json:"slot,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Complete reports whether the draft can be submitted.
func (d Draft) Complete() bool {
	return d.VehicleID != "" && d.Date != "" && d.Slot != nil
}

// CanAdvance is the per-step guard: it reports whether the wizard may
// move forward from step given the current draft.
func CanAdvance(step Step, d Draft) bool {
	switch step {
	case StepVehicle:
		return d.VehicleID != ""
	case StepSlot:
		return d.Date != "" && d.Slot != nil
	case StepSummary:
		return true
	default:
		return false
	}
}

// Transition computes the step that follows an event. Next is a no-op
// when the guard fails or the wizard is on the last step; Back never
// goes below the first step and never touches the draft.
func Transition(step Step, ev Event, d Draft) Step {
	switch ev {
	case EventNext:
		if step >= StepSummary || !CanAdvance(step, d) {
			return step
		}
		return step + 1
	case EventBack:
		if step <= StepVehicle {
			return step
		}
		return step - 1
	default:
		return step
	}
}
