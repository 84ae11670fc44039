package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"parkwise/internal/auth"
	"parkwise/internal/availability"
	"parkwise/internal/booking"
	"parkwise/internal/entities"
	"parkwise/internal/logger"
	"parkwise/internal/repository"
)

var (
	ErrPageNotFound      = errors.New("page not found")
	ErrPageClosed        = errors.New("page closed")
	ErrSlotNotSelectable = errors.New("slot is not available for selection")
	ErrNoSelection       = errors.New("no slot selected")
)

// SubscribeFunc opens the push feed for one lot.
type SubscribeFunc func(lotID string) availability.Subscription

// BookingNotifier is told about every booking created through a page.
type BookingNotifier interface {
	BookingConfirmed(user entities.User, lang string, lot *entities.Lot, slot entities.Slot, b *entities.Booking, total int64)
}

// LotSummary is the lot header of a page.
type LotSummary struct {
	ID           string                          `json:"_id"`
	Name         string                          `json:"name"`
	Address      string                          `json:"address"`
	PricingTiers map[string]entities.PricingTier `json:"pricingTiers"`
}

// PageSnapshot is everything a client needs to render a lot page.
type PageSnapshot struct {
	ID           string                `json:"id"`
	Lot          LotSummary            `json:"lot"`
	Availability availability.Snapshot `json:"availability"`
	Booking      *booking.View         `json:"booking,omitempty"`
	Outcome      *booking.Outcome      `json:"outcome,omitempty"`
	Redirect     string                `json:"redirect,omitempty"`
	Closed       bool                  `json:"closed,omitempty"`
}

// PageService hosts lot pages: one availability view per page plus the
// booking form for the slot the user picked.
type PageService struct {
	subscribe SubscribeFunc
	lots      repository.LotRepository
	pricing   repository.PricingRepository
	bookings  repository.BookingRepository
	notifier  BookingNotifier
	formOpts  booking.Options
	log       *logger.Logger
	now       func() time.Time

	mu    sync.Mutex
	pages map[string]*Page
}

func NewPageService(
	subscribe SubscribeFunc,
	lots repository.LotRepository,
	pricing repository.PricingRepository,
	bookings repository.BookingRepository,
	notifier BookingNotifier,
	formOpts booking.Options,
	log *logger.Logger,
) *PageService {
	return &PageService{
		subscribe: subscribe,
		lots:      lots,
		pricing:   pricing,
		bookings:  bookings,
		notifier:  notifier,
		formOpts:  formOpts,
		log:       log,
		now:       time.Now,
		pages:     make(map[string]*Page),
	}
}

// SearchLots passes a lot search through to the backend.
func (s *PageService) SearchLots(ctx context.Context, session *auth.Session, q entities.LotSearch) ([]entities.Lot, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}
	lots, err := s.lots.SearchLots(ctx, token, q)
	if err != nil {
		return nil, err
	}
	if lots == nil {
		lots = []entities.Lot{}
	}
	return lots, nil
}

// Open loads the lot and starts a live availability view for it.
func (s *PageService) Open(ctx context.Context, session *auth.Session, lotID, hint string) (*Page, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}
	lot, err := s.lots.GetLot(ctx, token, lotID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	p := &Page{
		id:       id,
		session:  session,
		lot:      lot,
		svc:      s,
		lastSeen: s.now(),
		watchers: make(map[chan PageSnapshot]struct{}),
		log:      s.log.With("page_id", id, "lot_id", lot.ID),
	}

	p.view = availability.NewView(lot.ID, lot.Slots, hint, s.subscribe(lot.ID))
	p.view.OnSelect(p.selected)
	p.view.OnChange(func(availability.Snapshot) { p.broadcast() })
	p.view.Start()

	s.mu.Lock()
	s.pages[p.id] = p
	s.mu.Unlock()

	p.log.Info("page opened", "slots", len(lot.Slots))
	return p, nil
}

// Get returns the page if it belongs to session.
func (s *PageService) Get(session *auth.Session, pageID string) (*Page, error) {
	s.mu.Lock()
	p, ok := s.pages[pageID]
	s.mu.Unlock()
	if !ok || p.session.KeyHash() != session.KeyHash() {
		return nil, ErrPageNotFound
	}
	p.touch()
	return p, nil
}

// Close tears the page down and forgets it.
func (s *PageService) Close(session *auth.Session, pageID string) error {
	p, err := s.Get(session, pageID)
	if err != nil {
		return err
	}
	s.remove(p)
	return nil
}

// CloseForSession closes every page the session owns.
func (s *PageService) CloseForSession(session *auth.Session) int {
	s.mu.Lock()
	var owned []*Page
	for _, p := range s.pages {
		if p.session.KeyHash() == session.KeyHash() {
			owned = append(owned, p)
		}
	}
	s.mu.Unlock()

	for _, p := range owned {
		s.remove(p)
	}
	return len(owned)
}

// SweepIdle closes pages that nobody has touched or watched for idle.
func (s *PageService) SweepIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var stale []*Page
	for _, p := range s.pages {
		if p.idleSince(cutoff) {
			stale = append(stale, p)
		}
	}
	s.mu.Unlock()

	for _, p := range stale {
		s.remove(p)
	}
	return len(stale)
}

// Count reports the number of open pages.
func (s *PageService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// CloseAll tears down every page, for shutdown.
func (s *PageService) CloseAll() {
	s.mu.Lock()
	all := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		all = append(all, p)
	}
	s.mu.Unlock()

	for _, p := range all {
		s.remove(p)
	}
}

func (s *PageService) remove(p *Page) {
	s.mu.Lock()
	delete(s.pages, p.id)
	s.mu.Unlock()
	p.close()
}

func (s *PageService) formOptions(session *auth.Session, log *logger.Logger) booking.Options {
	opts := s.formOpts
	if lang := session.Language(); lang != "" {
		opts.Language = lang
	}
	opts.Log = log
	return opts
}

// Page is one open lot page.
type Page struct {
	id      string
	session *auth.Session
	lot     *entities.Lot
	view    *availability.View
	svc     *PageService
	log     *logger.Logger

	mu       sync.Mutex
	form     *booking.Form
	outcome  *booking.Outcome
	redirect string
	lastSeen time.Time
	watchers map[chan PageSnapshot]struct{}
	closed   bool
}

func (p *Page) ID() string               { return p.id }
func (p *Page) Lot() *entities.Lot       { return p.lot }
func (p *Page) Session() *auth.Session   { return p.session }
func (p *Page) View() *availability.View { return p.view }

// Snapshot returns the page's current state.
func (p *Page) Snapshot() PageSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Page) snapshotLocked() PageSnapshot {
	snap := PageSnapshot{
		ID: p.id,
		Lot: LotSummary{
			ID:           p.lot.ID,
			Name:         p.lot.Name,
			Address:      p.lot.Address,
			PricingTiers: p.lot.PricingTiers,
		},
		Availability: p.view.Snapshot(),
		Outcome:      p.outcome,
		Redirect:     p.redirect,
		Closed:       p.closed,
	}
	if p.form != nil {
		v := p.form.View()
		snap.Booking = &v
	}
	return snap
}

// Select picks a slot and opens a fresh booking draft for it. Any previous
// draft on this page is discarded.
func (p *Page) Select(slotID string) (booking.View, error) {
	p.touch()
	if p.isClosed() {
		return booking.View{}, ErrPageClosed
	}
	if _, ok := p.view.SelectSlot(slotID); !ok {
		return booking.View{}, ErrSlotNotSelectable
	}

	p.mu.Lock()
	form := p.form
	p.mu.Unlock()
	if form == nil {
		return booking.View{}, ErrPageClosed
	}
	return form.View(), nil
}

// selected runs on the selecting goroutine via the view's OnSelect callback.
func (p *Page) selected(slot entities.Slot) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	prev := p.form
	backend := sessionBackend{session: p.session, pricing: p.svc.pricing, bookings: p.svc.bookings}
	form := booking.NewForm(p.lot, slot, p.session.Vehicles(), backend, backend, p.svc.formOptions(p.session, p.log))
	form.OnChange(func(booking.View) { p.broadcast() })
	form.OnRedirect(p.redirected)
	p.form = form
	p.outcome = nil
	p.redirect = ""
	p.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	p.log.Debug("slot selected", "slot_id", slot.ID, "identifier", slot.Identifier)
	p.broadcast()
}

// Update edits the current draft.
func (p *Page) Update(e booking.Edit) (booking.View, error) {
	form, err := p.currentForm()
	if err != nil {
		return booking.View{}, err
	}
	return form.Update(e)
}

// Submit sends the current draft to the backend.
func (p *Page) Submit(ctx context.Context) (booking.Outcome, error) {
	form, err := p.currentForm()
	if err != nil {
		return booking.Outcome{}, err
	}

	out, err := form.Submit(ctx)
	if err != nil {
		return out, err
	}

	p.mu.Lock()
	if p.form == form {
		p.outcome = &out
	}
	p.mu.Unlock()

	if out.Succeeded && p.svc.notifier != nil {
		p.svc.notifier.BookingConfirmed(p.session.User(), p.session.Language(), p.lot, form.Slot(), out.Booking, form.View().Price.Total)
	}
	p.broadcast()
	return out, nil
}

func (p *Page) redirected(target string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.redirect = target
	p.mu.Unlock()
	p.log.Debug("redirect due", "target", target)
	p.broadcast()
}

func (p *Page) currentForm() (*booking.Form, error) {
	p.touch()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	if p.form == nil {
		return nil, ErrNoSelection
	}
	return p.form, nil
}

// Watch streams snapshots until cancel is called or the page closes. Only the
// latest snapshot is kept for a slow reader.
func (p *Page) Watch() (<-chan PageSnapshot, func()) {
	ch := make(chan PageSnapshot, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	p.watchers[ch] = struct{}{}
	ch <- p.snapshotLocked()
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.watchers[ch]; ok {
				delete(p.watchers, ch)
				close(ch)
			}
			p.lastSeen = p.svc.now()
		})
	}
	return ch, cancel
}

func (p *Page) broadcast() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.watchers) == 0 {
		return
	}
	snap := p.snapshotLocked()
	for ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (p *Page) touch() {
	p.mu.Lock()
	p.lastSeen = p.svc.now()
	p.mu.Unlock()
}

func (p *Page) idleSince(cutoff time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers) == 0 && p.lastSeen.Before(cutoff)
}

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	form := p.form
	final := p.snapshotLocked()
	for ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- final
		close(ch)
		delete(p.watchers, ch)
	}
	p.mu.Unlock()

	if form != nil {
		form.Close()
	}
	p.view.Close()
	p.log.Info("page closed")
}

// sessionBackend calls the backend with the session's current token, so a
// closed session stops pricing and booking for every page it owned.
type sessionBackend struct {
	session  *auth.Session
	pricing  repository.PricingRepository
	bookings repository.BookingRepository
}

func (b sessionBackend) EstimatePrice(ctx context.Context, q entities.PriceQuery) (*entities.PriceEstimate, error) {
	token, err := b.session.Token()
	if err != nil {
		return nil, err
	}
	return b.pricing.Estimate(ctx, token, q)
}

func (b sessionBackend) CreateBooking(ctx context.Context, req entities.BookingRequest) (*entities.Booking, error) {
	token, err := b.session.Token()
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return b.bookings.Create(ctx, token, req)
}
