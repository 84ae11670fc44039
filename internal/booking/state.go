package booking

import "encoding/json"

// Phase is the form's lifecycle stage.
type Phase int

const (
	PhaseEditing Phase = iota
	PhasePricing
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseEditing:
		return "editing"
	case PhasePricing:
		return "pricing"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a tagged phase: a booking id exists only when succeeded, a failure only when failed.
type State struct {
	phase     Phase
	bookingID string
	failure   Failure
}

func editing() State                   { return State{phase: PhaseEditing} }
func pricing() State                   { return State{phase: PhasePricing} }
func submitting() State                { return State{phase: PhaseSubmitting} }
func succeeded(bookingID string) State { return State{phase: PhaseSucceeded, bookingID: bookingID} }
func failed(f Failure) State           { return State{phase: PhaseFailed, failure: f} }

func (s State) Phase() Phase { return s.phase }

// BookingID is set only in PhaseSucceeded.
func (s State) BookingID() (string, bool) {
	return s.bookingID, s.phase == PhaseSucceeded
}

// Failure is set only in PhaseFailed.
func (s State) Failure() (Failure, bool) {
	return s.failure, s.phase == PhaseFailed
}

// Editable reports whether draft fields may change.
func (s State) Editable() bool {
	return s.phase == PhaseEditing || s.phase == PhasePricing || s.phase == PhaseFailed
}

func (s State) MarshalJSON() ([]byte, error) {
	out := struct {
		Phase     string   `json:"phase"`
		BookingID string   `json:"bookingId,omitempty"`
		Failure   *Failure `json:"failure,omitempty"`
	}{Phase: s.phase.String()}

	if id, ok := s.BookingID(); ok {
		out.BookingID = id
	}
	if f, ok := s.Failure(); ok {
		out.Failure = &f
	}
	return json.Marshal(out)
}
