package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"parkwise/internal/entities"
	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
	"parkwise/internal/utils"
)

var (
	ErrClosed           = errors.New("booking form is closed")
	ErrNotEditable      = errors.New("booking can no longer be edited")
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	ErrAlreadySubmitted = errors.New("booking already submitted")
	ErrPricingInFlight  = errors.New("price estimate is still loading")
	ErrInvalidTime      = errors.New("invalid time value")
	ErrUnknownVehicle   = errors.New("unknown vehicle")
)

// InvalidError is returned by Submit when the draft does not pass validation.
type InvalidError struct {
	Result  Result
	Message string
}

func (e *InvalidError) Error() string { return e.Message }

// PriceEstimator fetches the backend's dynamic price.
type PriceEstimator interface {
	EstimatePrice(ctx context.Context, q entities.PriceQuery) (*entities.PriceEstimate, error)
}

// BookingCreator submits a booking to the backend.
type BookingCreator interface {
	CreateBooking(ctx context.Context, req entities.BookingRequest) (*entities.Booking, error)
}

const (
	defaultStartOffset = 15 * time.Minute
	defaultEndOffset   = 75 * time.Minute
	localLayout        = "2006-01-02T15:04"
)

// Options tune a Form.
type Options struct {
	Rules          Rules
	ServiceFee     int64
	Debounce       time.Duration
	RedirectDelay  time.Duration
	RedirectTarget string
	Language       string
	Location       *time.Location
	Now            func() time.Time
	Log            *logger.Logger
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Rules:          DefaultRules(),
		ServiceFee:     5000,
		Debounce:       500 * time.Millisecond,
		RedirectDelay:  3 * time.Second,
		RedirectTarget: "/dashboard?bookingSuccess=true",
		Language:       LangVI,
		Location:       time.UTC,
		Now:            time.Now,
	}
}

// Draft is the user's booking input.
type Draft struct {
	Start         *time.Time
	End           *time.Time
	VehicleID     string
	VehicleType   string
	VehicleNumber string
	Notes         string
}

// Edit changes draft fields. Nil fields are left alone; an empty time clears it.
// Choosing a saved vehicle also sets the vehicle type and plate.
type Edit struct {
	StartTime     *string `json:"startTime"`
	EndTime       *string `json:"endTime"`
	VehicleID     *string `json:"vehicleId"`
	VehicleType   *string `json:"vehicleType"`
	VehicleNumber *string `json:"vehicleNumber"`
	Notes         *string `json:"notes"`
}

// IssueView is a validation issue with its rendered message.
type IssueView struct {
	Field    string    `json:"field"`
	Code     IssueCode `json:"code"`
	Blocking bool      `json:"blocking"`
	Message  string    `json:"message"`
}

// View is a consistent read of a Form.
type View struct {
	Revision      uint64        `json:"revision"`
	LotID         string        `json:"lotId"`
	Slot          entities.Slot `json:"slot"`
	StartTime     string        `json:"startTime"`
	EndTime       string        `json:"endTime"`
	VehicleID     string        `json:"vehicleId,omitempty"`
	VehicleType   string        `json:"vehicleType"`
	VehicleNumber string        `json:"vehicleNumber"`
	Notes         string        `json:"notes"`
	State         State         `json:"state"`
	Issues        []IssueView   `json:"issues"`
	Price         Price         `json:"price"`
	PriceReason   string        `json:"priceReason,omitempty"`
	PricingNote   string        `json:"pricingNote,omitempty"`
	CanSubmit     bool          `json:"canSubmit"`
	Redirect      string        `json:"redirect,omitempty"`
	RedirectAt    *time.Time    `json:"redirectAt,omitempty"`
}

// Form is the booking draft for one selected slot.
//
// Pricing requests are debounced and tagged with a generation number; a result is applied only
// while its generation is current and the form has not started submitting.
type Form struct {
	lot      *entities.Lot
	slot     entities.Slot
	vehicles []entities.Vehicle
	pricer   PriceEstimator
	booker   BookingCreator
	opts     Options
	log      *logger.Logger

	onChange   func(View)
	onRedirect func(string)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	draft       Draft
	state       State
	validation  Result
	estimate    *entities.PriceEstimate
	pricingNote string
	generation  uint64
	revision    uint64
	debounce    *time.Timer
	redirect    *time.Timer
	redirectAt  *time.Time
	closed      bool
}

// NewForm opens a draft for slot in lot. The time window defaults to a one hour booking starting
// in 15 minutes and the vehicle is preselected from vehicles.
func NewForm(lot *entities.Lot, slot entities.Slot, vehicles []entities.Vehicle, pricer PriceEstimator, booker BookingCreator, opts Options) *Form {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Form{
		lot:      lot,
		slot:     slot,
		vehicles: vehicles,
		pricer:   pricer,
		booker:   booker,
		opts:     opts,
		log:      log.With("lot_id", lot.ID, "slot_id", slot.ID),
		ctx:      ctx,
		cancel:   cancel,
		state:    editing(),
	}

	now := opts.Now()
	start := now.Add(defaultStartOffset).Truncate(time.Minute)
	end := now.Add(defaultEndOffset).Truncate(time.Minute)
	f.draft.Start, f.draft.End = &start, &end

	vehicle, vehicleType, ok := PreselectVehicle(vehicles, slot.VehicleType)
	f.draft.VehicleType = vehicleType
	if ok {
		f.draft.VehicleID = vehicle.ID
		f.draft.VehicleNumber = vehicle.NumberPlate
	}

	f.mu.Lock()
	f.revalidateLocked()
	f.schedulePricingLocked()
	f.mu.Unlock()
	return f
}

// OnChange sets the callback receiving a view after every state change.
func (f *Form) OnChange(fn func(View)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// OnRedirect sets the callback fired once the post-success delay elapses.
func (f *Form) OnRedirect(fn func(target string)) {
	f.mu.Lock()
	f.onRedirect = fn
	f.mu.Unlock()
}

// Slot returns the slot the draft is for.
func (f *Form) Slot() entities.Slot { return f.slot }

// View returns the current form state.
func (f *Form) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// Update applies e to the draft, revalidates it and reschedules pricing.
func (f *Form) Update(e Edit) (View, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return View{}, ErrClosed
	}
	if !f.state.Editable() {
		v := f.viewLocked()
		f.mu.Unlock()
		return v, ErrNotEditable
	}

	next := f.draft
	if e.StartTime != nil {
		t, err := f.parseTime(*e.StartTime)
		if err != nil {
			f.mu.Unlock()
			return View{}, err
		}
		next.Start = t
	}
	if e.EndTime != nil {
		t, err := f.parseTime(*e.EndTime)
		if err != nil {
			f.mu.Unlock()
			return View{}, err
		}
		next.End = t
	}
	if e.VehicleID != nil {
		if *e.VehicleID == "" {
			next.VehicleID = ""
		} else {
			v, ok := f.vehicle(*e.VehicleID)
			if !ok {
				f.mu.Unlock()
				return View{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, *e.VehicleID)
			}
			next.VehicleID = v.ID
			next.VehicleType = v.Type
			next.VehicleNumber = v.NumberPlate
		}
	}
	if e.VehicleType != nil {
		next.VehicleType = strings.TrimSpace(*e.VehicleType)
	}
	if e.VehicleNumber != nil {
		next.VehicleNumber = strings.TrimSpace(*e.VehicleNumber)
	}
	if e.Notes != nil {
		next.Notes = *e.Notes
	}

	f.draft = next
	if f.state.Phase() == PhaseFailed {
		f.state = editing()
	}
	f.revalidateLocked()
	f.schedulePricingLocked()
	v := f.changedLocked()
	f.mu.Unlock()

	f.notify(v)
	return v, nil
}

func (f *Form) parseTime(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := utils.ParseInstant(value, f.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return &t, nil
}

func (f *Form) vehicle(id string) (entities.Vehicle, bool) {
	for _, v := range f.vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return entities.Vehicle{}, false
}

func (f *Form) revalidateLocked() {
	f.validation = Validate(Input{
		Start:           f.draft.Start,
		End:             f.draft.End,
		VehicleType:     f.draft.VehicleType,
		SlotIdentifier:  f.slot.Identifier,
		SlotVehicleType: f.slot.VehicleType,
		Tiers:           f.lot.PricingTiers,
	}, f.opts.Now(), f.opts.Rules)
}

// schedulePricingLocked invalidates any pending or in-flight estimate and, when the draft is
// valid, arms a new debounced request.
func (f *Form) schedulePricingLocked() {
	f.generation++
	gen := f.generation

	if f.debounce != nil {
		f.debounce.Stop()
		f.debounce = nil
	}
	f.estimate = nil
	f.pricingNote = ""
	if f.state.Phase() == PhasePricing {
		f.state = editing()
	}

	if f.validation.Blocking() || f.validation.DurationHours == 0 {
		return
	}
	f.debounce = time.AfterFunc(f.opts.Debounce, func() { f.fetchPrice(gen) })
}

func (f *Form) fetchPrice(gen uint64) {
	f.mu.Lock()
	if f.closed || gen != f.generation || !f.state.Editable() {
		f.mu.Unlock()
		return
	}
	q := entities.PriceQuery{
		LotID:       f.lot.ID,
		StartTime:   utils.FormatISO(*f.draft.Start),
		EndTime:     utils.FormatISO(*f.draft.End),
		VehicleType: f.draft.VehicleType,
	}
	f.state = pricing()
	v := f.changedLocked()
	f.mu.Unlock()
	f.notify(v)

	est, err := f.pricer.EstimatePrice(f.ctx, q)

	f.mu.Lock()
	if f.closed || gen != f.generation || f.state.Phase() != PhasePricing {
		f.mu.Unlock()
		f.log.Debug("discarding stale price estimate", "generation", gen)
		return
	}
	f.state = editing()
	if err != nil {
		f.log.Warn("price estimate failed, falling back to base price", "error", err)
		f.estimate = nil
		f.pricingNote = Translate(f.opts.Language, MsgPricingUnavailable, errorMessage(err))
	} else {
		f.estimate = est
	}
	v = f.changedLocked()
	f.mu.Unlock()
	f.notify(v)
}

// Submit sends the draft to the backend. Validation and state preconditions are reported as
// errors; a backend rejection is reported as a failed Outcome.
func (f *Form) Submit(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	switch f.state.Phase() {
	case PhaseSubmitting:
		f.mu.Unlock()
		return Outcome{}, ErrSubmitInProgress
	case PhaseSucceeded:
		f.mu.Unlock()
		return Outcome{}, ErrAlreadySubmitted
	case PhasePricing:
		f.mu.Unlock()
		return Outcome{}, ErrPricingInFlight
	}

	f.revalidateLocked()
	if err := f.submittableLocked(); err != nil {
		f.mu.Unlock()
		return Outcome{}, err
	}

	req := f.requestLocked()
	f.generation++
	if f.debounce != nil {
		f.debounce.Stop()
		f.debounce = nil
	}
	f.state = submitting()
	v := f.changedLocked()
	f.mu.Unlock()
	f.notify(v)

	created, err := f.booker.CreateBooking(ctx, req)

	f.mu.Lock()
	lang := f.opts.Language
	if err != nil {
		failure := Classify(err, f.slot.Identifier, lang)
		f.log.Warn("booking rejected", "reason", failure.Reason, "status", failure.Status, "error", err)
		closed := f.closed
		if !closed {
			f.state = failed(failure)
		}
		v = f.changedLocked()
		f.mu.Unlock()
		if !closed {
			f.notify(v)
		}
		return Outcome{Message: failure.Message, Failure: &failure}, nil
	}

	var bookingID string
	if created != nil {
		bookingID = created.ID
	}
	f.state = succeeded(bookingID)
	out := Outcome{
		Succeeded:     true,
		BookingID:     bookingID,
		Booking:       created,
		Message:       Translate(lang, MsgBookingSucceeded, f.slot.Identifier, bookingID),
		Redirect:      f.opts.RedirectTarget,
		RedirectAfter: f.opts.RedirectDelay,
	}
	closed := f.closed
	if !closed {
		at := f.opts.Now().Add(f.opts.RedirectDelay)
		f.redirectAt = &at
		out.RedirectAt = &at
		f.redirect = time.AfterFunc(f.opts.RedirectDelay, f.fireRedirect)
	}
	v = f.changedLocked()
	f.mu.Unlock()

	f.log.Info("booking created", "booking_id", bookingID)
	if !closed {
		f.notify(v)
	}
	return out, nil
}

func (f *Form) submittableLocked() error {
	lang := f.opts.Language
	for _, is := range f.validation.Issues {
		if is.Blocking {
			return &InvalidError{Result: f.validation, Message: is.Message(lang)}
		}
	}
	if f.validation.DurationHours <= 0 {
		return &InvalidError{Result: f.validation, Message: Translate(lang, MsgInvalidDuration)}
	}
	return nil
}

func (f *Form) requestLocked() entities.BookingRequest {
	req := entities.BookingRequest{
		SlotID:       f.slot.ID,
		ParkingLotID: f.lot.ID,
		StartTime:    utils.FormatISO(*f.draft.Start),
		EndTime:      utils.FormatISO(*f.draft.End),
		VehicleType:  f.draft.VehicleType,
	}
	if plate := strings.TrimSpace(f.draft.VehicleNumber); plate != "" {
		req.VehicleNumber = &plate
	}
	if notes := strings.TrimSpace(f.draft.Notes); notes != "" {
		req.Notes = &notes
	}
	return req
}

func (f *Form) fireRedirect() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	cb := f.onRedirect
	target := f.opts.RedirectTarget
	f.mu.Unlock()

	if cb != nil {
		cb(target)
	}
}

// Close abandons the draft: timers stop and any in-flight estimate is ignored. Safe to call more than once.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.generation++
	if f.debounce != nil {
		f.debounce.Stop()
	}
	if f.redirect != nil {
		f.redirect.Stop()
	}
	f.cancel()
}

func (f *Form) notify(v View) {
	f.mu.Lock()
	cb := f.onChange
	f.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

func (f *Form) changedLocked() View {
	f.revision++
	return f.viewLocked()
}

func (f *Form) viewLocked() View {
	lang := f.opts.Language

	issues := make([]IssueView, 0, len(f.validation.Issues))
	for _, is := range f.validation.Issues {
		issues = append(issues, IssueView{
			Field:    is.Field,
			Code:     is.Code,
			Blocking: is.Blocking,
			Message:  is.Message(lang),
		})
	}

	var (
		dynamic *int64
		reason  string
	)
	if f.estimate != nil {
		if f.estimate.EstimatedPrice > 0 {
			dynamic = &f.estimate.EstimatedPrice
		}
		reason = FactorReason(lang, f.estimate.Factors)
	}
	tier, _ := f.lot.Tier(f.draft.VehicleType)
	price := Quote(f.validation.DurationHours, tier.BasePricePerHour, dynamic, f.opts.ServiceFee)
	if f.estimate != nil {
		price.Factors = f.estimate.Factors
	}

	v := View{
		Revision:      f.revision,
		LotID:         f.lot.ID,
		Slot:          f.slot,
		StartTime:     f.formatLocal(f.draft.Start),
		EndTime:       f.formatLocal(f.draft.End),
		VehicleID:     f.draft.VehicleID,
		VehicleType:   f.draft.VehicleType,
		VehicleNumber: f.draft.VehicleNumber,
		Notes:         f.draft.Notes,
		State:         f.state,
		Issues:        issues,
		Price:         price,
		PriceReason:   reason,
		PricingNote:   f.pricingNote,
	}

	phase := f.state.Phase()
	v.CanSubmit = (phase == PhaseEditing || phase == PhaseFailed) &&
		!f.validation.Blocking() && f.validation.DurationHours > 0
	if phase == PhaseSucceeded {
		v.Redirect = f.opts.RedirectTarget
		v.RedirectAt = f.redirectAt
	}
	return v
}

func (f *Form) formatLocal(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(f.opts.Location).Format(localLayout)
}

func errorMessage(err error) string {
	if apperrors.StatusOf(err) != 0 {
		return apperrors.As(err).Message
	}
	return err.Error()
}
