package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"parkwise/internal/auth"
	"parkwise/internal/availability"
	"parkwise/internal/booking"
	"parkwise/internal/entities"
	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
	"parkwise/internal/push"
	"parkwise/internal/repository"
)

// --- fakes ---

type fakeSub struct {
	events chan push.Event
	once   sync.Once
	closed chan struct{}
}

func (s *fakeSub) Events() <-chan push.Event { return s.events }
func (s *fakeSub) Close()                    { s.once.Do(func() { close(s.closed) }) }

func (s *fakeSub) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (f *fakeFeed) subscribe(string) availability.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{events: make(chan push.Event, 8), closed: make(chan struct{})}
	f.subs = append(f.subs, s)
	return s
}

func (f *fakeFeed) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

type fakeLots struct {
	lot entities.Lot
	err error
}

func (f *fakeLots) GetLot(_ context.Context, _ string, lotID string) (*entities.Lot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if lotID != f.lot.ID {
		return nil, apperrors.ErrNotFound("Không tìm thấy bãi đỗ xe")
	}
	lot := f.lot
	lot.Slots = append([]entities.Slot(nil), f.lot.Slots...)
	return &lot, nil
}

func (f *fakeLots) SearchLots(context.Context, string, entities.LotSearch) ([]entities.Lot, error) {
	return nil, nil
}

type fakePricing struct{}

func (fakePricing) Estimate(_ context.Context, _ string, q entities.PriceQuery) (*entities.PriceEstimate, error) {
	return &entities.PriceEstimate{EstimatedPrice: 22000, BasePrice: 20000, Factors: []string{"peak_hour_surcharge"}}, nil
}

type fakeBookings struct {
	mu        sync.Mutex
	tokens    []string
	requests  []entities.BookingRequest
	createErr error
	list      []entities.Booking
	cancelled []string
}

func (f *fakeBookings) Create(_ context.Context, token string, req entities.BookingRequest) (*entities.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.requests = append(f.requests, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &entities.Booking{ID: "b-1", Status: entities.BookingPending, VehicleNumber: "51A-12345"}, nil
}

func (f *fakeBookings) ListMine(context.Context, string) ([]entities.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.Booking(nil), f.list...), nil
}

func (f *fakeBookings) Cancel(_ context.Context, _ string, id string) (*entities.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return &entities.Booking{ID: id, Status: entities.BookingCancelled}, nil
}

type confirmation struct {
	user entities.User
	lang string
	slot entities.Slot
	id   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []confirmation
}

func (n *recordingNotifier) BookingConfirmed(user entities.User, lang string, _ *entities.Lot, slot entities.Slot, b *entities.Booking, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, confirmation{user: user, lang: lang, slot: slot, id: b.ID})
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// --- helpers ---

var fixedNow = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func testLot() entities.Lot {
	return entities.Lot{
		ID:   "lot-1",
		Name: "Bãi xe Bến Thành",
		PricingTiers: map[string]entities.PricingTier{
			"car_4_seats": {BasePricePerHour: 20000},
			"motorbike":   {BasePricePerHour: 5000},
		},
		Slots: []entities.Slot{
			{ID: "s10", Identifier: "A-10", VehicleType: "any", Status: entities.SlotAvailable},
			{ID: "s2", Identifier: "A-2", VehicleType: "car_4_seats", Status: entities.SlotOccupied},
			{ID: "s1", Identifier: "A-1", VehicleType: "any", Status: entities.SlotAvailable},
		},
	}
}

func testFormOptions() booking.Options {
	opts := booking.DefaultOptions()
	opts.Debounce = time.Millisecond
	opts.RedirectDelay = time.Hour
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

type harness struct {
	feed     *fakeFeed
	bookings *fakeBookings
	notifier *recordingNotifier
	manager  *auth.Manager
	pages    *PageService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		feed:     &fakeFeed{},
		bookings: &fakeBookings{},
		notifier: &recordingNotifier{},
		manager:  auth.NewManager(repository.NewMemorySessionRepository(), nil, time.Hour, logger.Discard()),
	}
	h.pages = NewPageService(h.feed.subscribe, &fakeLots{lot: testLot()}, fakePricing{}, h.bookings, h.notifier, testFormOptions(), logger.Discard())
	h.manager.OnClose(func(s *auth.Session) { h.pages.CloseForSession(s) })
	t.Cleanup(h.pages.CloseAll)
	return h
}

func (h *harness) session(t *testing.T, token string) *auth.Session {
	t.Helper()
	s, err := h.manager.Open(context.Background(), &entities.User{
		ID:    "u-" + token,
		Name:  "Lan",
		Phone: "0901234567",
		Token: token,
		Profile: entities.Profile{Vehicles: []entities.Vehicle{
			{ID: "v1", NumberPlate: "51A-12345", Type: "car_4_seats", IsDefault: true},
		}},
	}, "en")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return s
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- page service ---

func TestPageService_OpenSnapshot(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "tok-1")

	page, err := h.pages.Open(context.Background(), s, "lot-1", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := page.Snapshot()
	var ids []string
	for _, sv := range snap.Availability.Slots {
		ids = append(ids, sv.Identifier)
	}
	if got := strings.Join(ids, ","); got != "A-1,A-2,A-10" {
		t.Errorf("slot order = %s", got)
	}
	if c := snap.Availability.Counts; c.Available != 2 || c.Occupied != 1 || c.Total != 3 {
		t.Errorf("counts = %+v", c)
	}
	if snap.Booking != nil {
		t.Error("no booking draft expected before selection")
	}
}

func TestPageService_OpenUnknownLot(t *testing.T) {
	h := newHarness(t)
	_, err := h.pages.Open(context.Background(), h.session(t, "tok-1"), "nope", "")
	if apperrors.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
	if h.pages.Count() != 0 {
		t.Error("failed open left a page behind")
	}
}

func TestPageService_PushUpdatesReachWatchers(t *testing.T) {
	h := newHarness(t)
	page, _ := h.pages.Open(context.Background(), h.session(t, "tok-1"), "lot-1", "")

	updates, cancel := page.Watch()
	defer cancel()
	<-updates // initial snapshot

	h.feed.last().events <- push.Event{
		Kind: push.EventSlotChanged,
		Slot: push.SlotChanged{SlotID: "s1", LotID: "lot-1", Status: entities.SlotReserved},
	}

	select {
	case snap := <-updates:
		if snap.Availability.Counts.Reserved != 1 {
			t.Errorf("counts = %+v", snap.Availability.Counts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after push event")
	}
}

func TestPageService_SelectGuardsAvailability(t *testing.T) {
	h := newHarness(t)
	page, _ := h.pages.Open(context.Background(), h.session(t, "tok-1"), "lot-1", "")

	if _, err := page.Select("s2"); !errors.Is(err, ErrSlotNotSelectable) {
		t.Errorf("occupied slot: err = %v", err)
	}
	if _, err := page.Update(booking.Edit{}); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Update without selection: err = %v", err)
	}

	view, err := page.Select("s1")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if view.Slot.ID != "s1" || view.VehicleID != "v1" || view.VehicleType != "car_4_seats" {
		t.Errorf("draft = %+v", view)
	}
}

func TestPageService_ReselectDiscardsDraft(t *testing.T) {
	h := newHarness(t)
	page, _ := h.pages.Open(context.Background(), h.session(t, "tok-1"), "lot-1", "")

	if _, err := page.Select("s1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	note := "gần cổng"
	if _, err := page.Update(booking.Edit{Notes: &note}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	view, err := page.Select("s10")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if view.Slot.ID != "s10" || view.Notes != "" {
		t.Errorf("new draft carried old input: %+v", view)
	}
}

func TestPageService_SubmitSuccess(t *testing.T) {
	h := newHarness(t)
	page, _ := h.pages.Open(context.Background(), h.session(t, "tok-1"), "lot-1", "")
	if _, err := page.Select("s1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	eventually(t, func() bool {
		snap := page.Snapshot()
		return snap.Booking != nil && snap.Booking.Price.Dynamic != nil
	})

	out, err := page.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !out.Succeeded || out.BookingID != "b-1" {
		t.Fatalf("outcome = %+v", out)
	}
	if h.bookings.tokens[0] != "tok-1" {
		t.Errorf("booking sent with token %q", h.bookings.tokens[0])
	}
	req := h.bookings.requests[0]
	if req.SlotID != "s1" || req.ParkingLotID != "lot-1" || req.VehicleType != "car_4_seats" {
		t.Errorf("request = %+v", req)
	}
	if h.notifier.count() != 1 || h.notifier.sent[0].lang != "en" || h.notifier.sent[0].slot.ID != "s1" {
		t.Errorf("notifications = %+v", h.notifier.sent)
	}
	snap := page.Snapshot()
	if snap.Outcome == nil || snap.Booking.State.Phase() != booking.PhaseSucceeded {
		t.Errorf("snapshot after submit = %+v", snap)
	}
}

func TestPageService_SubmitConflictDoesNotNotify(t *testing.T) {
	h := newHarness(t)
	h.bookings.createErr = apperrors.ErrConflict("Chỗ đỗ xe đã bị chiếm")
	page, _ := h.pages.Open(context.Background(), h.session(t, "tok-1"), "lot-1", "")
	page.Select("s1")
	eventually(t, func() bool {
		snap := page.Snapshot()
		return snap.Booking != nil && snap.Booking.Price.Dynamic != nil
	})

	out, err := page.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Succeeded || out.Failure == nil || out.Failure.Reason != booking.FailureSlotTaken {
		t.Errorf("outcome = %+v", out)
	}
	if h.notifier.count() != 0 {
		t.Error("failed booking must not notify")
	}
}

func TestPageService_PagesAreScopedToSession(t *testing.T) {
	h := newHarness(t)
	owner := h.session(t, "tok-1")
	other := h.session(t, "tok-2")
	page, _ := h.pages.Open(context.Background(), owner, "lot-1", "")

	if _, err := h.pages.Get(other, page.ID()); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("foreign session: err = %v", err)
	}
	if _, err := h.pages.Get(owner, page.ID()); err != nil {
		t.Errorf("owner: err = %v", err)
	}
}

func TestPageService_LogoutClosesPages(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "tok-1")
	page, _ := h.pages.Open(context.Background(), s, "lot-1", "")
	updates, _ := page.Watch()
	<-updates

	h.manager.Close(context.Background(), s)

	if h.pages.Count() != 0 {
		t.Errorf("pages left open: %d", h.pages.Count())
	}
	if !h.feed.last().isClosed() {
		t.Error("push subscription not released")
	}
	final, ok := <-updates
	if !ok || !final.Closed {
		t.Errorf("watcher should get a closed snapshot, got %+v, %v", final, ok)
	}
	if _, ok := <-updates; ok {
		t.Error("watch channel not closed")
	}
	if _, err := page.Select("s1"); !errors.Is(err, ErrPageClosed) {
		t.Errorf("Select after close: %v", err)
	}
}

func TestPageService_SweepIdle(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "tok-1")
	clock := fixedNow
	h.pages.now = func() time.Time { return clock }

	idle, _ := h.pages.Open(context.Background(), s, "lot-1", "")
	watched, _ := h.pages.Open(context.Background(), s, "lot-1", "")
	_, cancel := watched.Watch()
	defer cancel()

	clock = fixedNow.Add(time.Hour)
	if n := h.pages.SweepIdle(30 * time.Minute); n != 1 {
		t.Fatalf("swept %d pages, want 1", n)
	}
	if _, err := h.pages.Get(s, idle.ID()); !errors.Is(err, ErrPageNotFound) {
		t.Error("idle page still registered")
	}
	if _, err := h.pages.Get(s, watched.ID()); err != nil {
		t.Error("watched page was swept")
	}
}

func TestJobService_Schedule(t *testing.T) {
	h := newHarness(t)
	jobs := NewJobService(h.pages, h.manager, time.Minute, logger.Discard())

	if err := jobs.Schedule(cron.New(), "@every 1m", "@every 15m"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := jobs.Schedule(cron.New(), "not a schedule", "@every 15m"); err == nil {
		t.Error("invalid schedule accepted")
	}
	if err := jobs.PurgeExpiredSessions(); err != nil {
		t.Errorf("PurgeExpiredSessions: %v", err)
	}
}

// --- sessions, vehicles, bookings ---

type fakeUsers struct {
	repository.UserRepository
	creds    entities.Credentials
	reg      entities.Registration
	vehicles []entities.Vehicle
}

func (f *fakeUsers) Login(_ context.Context, c entities.Credentials) (*entities.User, error) {
	f.creds = c
	return &entities.User{ID: "u1", Email: c.Email, Token: "tok"}, nil
}

func (f *fakeUsers) Register(_ context.Context, r entities.Registration) (*entities.User, error) {
	f.reg = r
	return &entities.User{ID: "u2", Email: r.Email, Phone: r.Phone, Token: "tok"}, nil
}

func (f *fakeUsers) AddVehicle(_ context.Context, _ string, v entities.Vehicle) ([]entities.Vehicle, error) {
	v.ID = "v9"
	f.vehicles = append(f.vehicles, v)
	return f.vehicles, nil
}

func TestLoginEmail(t *testing.T) {
	tests := map[string]string{
		"lan@example.com": "lan@example.com",
		" 0901234567 ":    "0901234567@parkwise.com",
	}
	for in, want := range tests {
		if got := LoginEmail(in); got != want {
			t.Errorf("LoginEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSessionService_LoginAndRegister(t *testing.T) {
	users := &fakeUsers{}
	manager := auth.NewManager(repository.NewMemorySessionRepository(), nil, time.Hour, logger.Discard())
	svc := NewSessionService(users, manager, "vi", logger.Discard())

	s, err := svc.Login(context.Background(), "0901234567", "secret", "fr")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if users.creds.Email != "0901234567@parkwise.com" {
		t.Errorf("login email = %q", users.creds.Email)
	}
	if s.Language() != "vi" {
		t.Errorf("unsupported language should fall back, got %q", s.Language())
	}

	if _, err := svc.Register(context.Background(), " Lan ", "0907654321", "secret", "en"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if users.reg.Email != "0907654321@parkwise.com" || users.reg.Name != "Lan" {
		t.Errorf("registration = %+v", users.reg)
	}
}

func TestSessionService_AddVehicleNormalisesAndRefreshesSession(t *testing.T) {
	users := &fakeUsers{}
	manager := auth.NewManager(repository.NewMemorySessionRepository(), nil, time.Hour, logger.Discard())
	svc := NewSessionService(users, manager, "vi", logger.Discard())
	s, _ := svc.Login(context.Background(), "lan@example.com", "secret", "vi")

	list, err := svc.AddVehicle(context.Background(), s, entities.Vehicle{NumberPlate: " 51a-999.99 ", Type: "motorbike"})
	if err != nil {
		t.Fatalf("AddVehicle: %v", err)
	}
	if list[0].NumberPlate != "51A-999.99" {
		t.Errorf("plate = %q", list[0].NumberPlate)
	}
	if got := s.Vehicles(); len(got) != 1 || got[0].ID != "v9" {
		t.Errorf("session vehicles = %+v", got)
	}
}

func TestBookingService_Cancel(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "tok-1")
	h.bookings.list = []entities.Booking{
		{ID: "soon", Status: entities.BookingConfirmed, StartTime: fixedNow.Add(30 * time.Minute)},
		{ID: "later", Status: entities.BookingPending, StartTime: fixedNow.Add(3 * time.Hour)},
		{ID: "done", Status: entities.BookingCompleted, StartTime: fixedNow.Add(-3 * time.Hour)},
	}
	svc := NewBookingService(h.bookings, logger.Discard())
	svc.now = func() time.Time { return fixedNow }

	tests := []struct {
		id     string
		status int
	}{
		{"missing", http.StatusNotFound},
		{"soon", http.StatusConflict},
		{"done", http.StatusConflict},
		{"later", 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := svc.Cancel(context.Background(), s, tt.id)
			if got := apperrors.StatusOf(err); got != tt.status {
				t.Errorf("status = %d (err %v), want %d", got, err, tt.status)
			}
		})
	}
	if len(h.bookings.cancelled) != 1 || h.bookings.cancelled[0] != "later" {
		t.Errorf("cancelled = %v", h.bookings.cancelled)
	}

	items, err := svc.ListMine(context.Background(), s)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if !items[1].CanCancel || items[0].CanCancel || !items[2].CanReview {
		t.Errorf("actions = %+v", items)
	}
}

// --- notifications ---

type fakeMailer struct{ to, subject, html string }

func (m *fakeMailer) SendEmail(toEmail, _, subject, _, html string) error {
	m.to, m.subject, m.html = toEmail, subject, html
	return nil
}

type fakeTexter struct{ to, body string }

func (t *fakeTexter) SendSMS(to, body string) error {
	t.to, t.body = to, body
	return nil
}

func TestToE164(t *testing.T) {
	tests := map[string]string{
		"0901234567":      "+84901234567",
		"090 123 4567":    "+84901234567",
		"090-123-4567":    "+84901234567",
		"+84901234567":    "+84901234567",
		"+84 90 123 4567": "+84901234567",
		"":                "",
		"12345":           "",
		"8412":            "",
		"+abc":            "",
	}
	for in, want := range tests {
		if got := ToE164(in); got != want {
			t.Errorf("ToE164(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSenderService_BookingConfirmed(t *testing.T) {
	lot := testLot()
	b := &entities.Booking{
		ID:        "b-1",
		StartTime: time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC),
	}
	ict := time.FixedZone("ICT", 7*60*60)

	t.Run("real address and phone", func(t *testing.T) {
		mailer, texter := &fakeMailer{}, &fakeTexter{}
		s := NewSenderService(mailer, texter, ict, logger.Discard())
		s.run = func(fn func()) { fn() }

		s.BookingConfirmed(entities.User{Name: "Lan", Email: "lan@example.com", Phone: "0901234567"}, "vi", &lot, lot.Slots[2], b, 65000)

		if mailer.to != "lan@example.com" || !strings.Contains(mailer.subject, "b-1") {
			t.Errorf("email = %+v", mailer)
		}
		if !strings.Contains(mailer.html, "65.000") || !strings.Contains(mailer.html, "01/01/2025 09:00") {
			t.Errorf("html missing total or local start time: %s", mailer.html)
		}
		if texter.to != "+84901234567" || !strings.Contains(texter.body, "A-1") {
			t.Errorf("sms = %+v", texter)
		}
	})

	t.Run("derived address is skipped", func(t *testing.T) {
		mailer := &fakeMailer{}
		s := NewSenderService(mailer, nil, ict, logger.Discard())
		s.run = func(fn func()) { fn() }

		s.BookingConfirmed(entities.User{Email: "0901234567@parkwise.com"}, "vi", &lot, lot.Slots[2], b, 65000)

		if mailer.to != "" {
			t.Errorf("email sent to derived address %q", mailer.to)
		}
	})
}
