package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parkwise/internal/entities"
	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
	"parkwise/internal/repository"
)

type fakeVerifier struct {
	mu    sync.Mutex
	user  *entities.User
	err   error
	calls int
	token string
}

func (f *fakeVerifier) Profile(_ context.Context, token string) (*entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	u := *f.user
	return &u, nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "u1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newTestManager(repo repository.SessionRepository, v Verifier, now time.Time) *Manager {
	m := NewManager(repo, v, time.Hour, logger.Discard())
	m.now = func() time.Time { return now }
	return m
}

var testNow = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func testUser(token string) *entities.User {
	return &entities.User{
		ID:    "u1",
		Name:  "Lan",
		Token: token,
		Profile: entities.Profile{Vehicles: []entities.Vehicle{
			{ID: "v1", NumberPlate: "51A-12345", Type: "car_4_seats", IsDefault: true},
		}},
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := testNow.Add(30 * time.Minute)
	got, ok := TokenExpiry(signedToken(t, exp))
	if !ok || !got.Equal(exp) {
		t.Errorf("TokenExpiry = %v, %v; want %v", got, ok, exp)
	}
	if _, ok := TokenExpiry("not-a-jwt"); ok {
		t.Error("opaque token should have no expiry")
	}
}

func TestManager_OpenUsesEarlierOfTokenExpiryAndTTL(t *testing.T) {
	m := newTestManager(repository.NewMemorySessionRepository(), &fakeVerifier{}, testNow)

	short, err := m.Open(context.Background(), testUser(signedToken(t, testNow.Add(10*time.Minute))), "vi")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if want := testNow.Add(10 * time.Minute); !short.ExpiresAt().Equal(want) {
		t.Errorf("expiry = %v, want %v", short.ExpiresAt(), want)
	}

	long, err := m.Open(context.Background(), testUser("opaque"), "vi")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if want := testNow.Add(time.Hour); !long.ExpiresAt().Equal(want) {
		t.Errorf("expiry = %v, want %v", long.ExpiresAt(), want)
	}
}

func TestManager_OpenRejectsMissingToken(t *testing.T) {
	m := newTestManager(repository.NewMemorySessionRepository(), &fakeVerifier{}, testNow)
	if _, err := m.Open(context.Background(), testUser(""), "vi"); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("err = %v, want ErrSessionInvalid", err)
	}
}

func TestManager_ResolveLive(t *testing.T) {
	v := &fakeVerifier{}
	m := newTestManager(repository.NewMemorySessionRepository(), v, testNow)
	s, _ := m.Open(context.Background(), testUser("tok"), "en")

	got, err := m.Resolve(context.Background(), s.ID())
	if err != nil || got != s {
		t.Fatalf("Resolve = %v, %v", got, err)
	}
	if v.calls != 0 {
		t.Errorf("live session should not be re-verified, calls = %d", v.calls)
	}
	if u := got.User(); u.Token != "" {
		t.Error("User() must not expose the token")
	}
}

func TestManager_ResolveLoadsAndVerifiesFromStorage(t *testing.T) {
	repo := repository.NewMemorySessionRepository()
	first := newTestManager(repo, &fakeVerifier{}, testNow)
	s, err := first.Open(context.Background(), testUser("tok"), "en")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	refreshed := testUser("")
	refreshed.Name = "Lan Nguyen"
	v := &fakeVerifier{user: refreshed}
	restarted := newTestManager(repo, v, testNow.Add(time.Minute))

	got, err := restarted.Resolve(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.State() != StateReady {
		t.Errorf("state = %v, want ready", got.State())
	}
	if tok, _ := got.Token(); tok != "tok" {
		t.Errorf("token = %q, want stored token", tok)
	}
	if got.User().Name != "Lan Nguyen" {
		t.Errorf("user not refreshed: %+v", got.User())
	}
	if got.Language() != "en" {
		t.Errorf("language = %q", got.Language())
	}
	if v.calls != 1 {
		t.Errorf("verify calls = %d, want 1", v.calls)
	}
	if v.token != "tok" {
		t.Errorf("verified with %q, want the unsealed token", v.token)
	}
}

func TestManager_StoresSealedToken(t *testing.T) {
	repo := repository.NewMemorySessionRepository()
	m := newTestManager(repo, &fakeVerifier{}, testNow)
	s, err := m.Open(context.Background(), testUser("tok"), "vi")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	row, _ := repo.Get(context.Background(), s.KeyHash())
	if row == nil {
		t.Fatal("session not stored")
	}
	if row.Token == "tok" || row.Token == "" {
		t.Fatalf("stored token = %q, want sealed value", row.Token)
	}
	if tok, err := repository.OpenToken(s.ID(), row.Token); err != nil || tok != "tok" {
		t.Errorf("OpenToken = %q, %v", tok, err)
	}

	row.Token = "tok"
	if err := repo.Save(context.Background(), row); err != nil {
		t.Fatal(err)
	}
	restarted := newTestManager(repo, &fakeVerifier{}, testNow)
	if _, err := restarted.Resolve(context.Background(), s.ID()); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("err = %v, want ErrSessionInvalid for unsealable token", err)
	}
	if row, _ := repo.Get(context.Background(), s.KeyHash()); row != nil {
		t.Error("unreadable session left in storage")
	}
}

func TestManager_ResolveClearsRejectedSession(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"unauthorized", apperrors.ErrUnauthorized("token expired"), ErrSessionExpired},
		{"other failure", errors.New("connection refused"), ErrSessionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemorySessionRepository()
			s, _ := newTestManager(repo, &fakeVerifier{}, testNow).Open(context.Background(), testUser("tok"), "vi")

			restarted := newTestManager(repo, &fakeVerifier{err: tt.err}, testNow)
			if _, err := restarted.Resolve(context.Background(), s.ID()); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if row, _ := repo.Get(context.Background(), s.KeyHash()); row != nil {
				t.Error("rejected session left in storage")
			}
		})
	}
}

func TestManager_ResolveUnknownAndExpired(t *testing.T) {
	repo := repository.NewMemorySessionRepository()
	m := newTestManager(repo, &fakeVerifier{}, testNow)

	if _, err := m.Resolve(context.Background(), ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("empty id: %v", err)
	}
	if _, err := m.Resolve(context.Background(), "missing"); !errors.Is(err, ErrNoSession) {
		t.Errorf("unknown id: %v", err)
	}

	s, _ := m.Open(context.Background(), testUser("tok"), "vi")
	m.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	if _, err := m.Resolve(context.Background(), s.ID()); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expired: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expired session state = %v", s.State())
	}
}

func TestManager_CloseInvalidatesReferencesAndRunsHooks(t *testing.T) {
	repo := repository.NewMemorySessionRepository()
	m := newTestManager(repo, &fakeVerifier{}, testNow)
	var closed []string
	m.OnClose(func(s *Session) { closed = append(closed, s.ID()) })

	s, _ := m.Open(context.Background(), testUser("tok"), "vi")
	m.Close(context.Background(), s)
	m.Close(context.Background(), s)

	if _, err := s.Token(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Token after close: %v", err)
	}
	if len(closed) != 1 || closed[0] != s.ID() {
		t.Errorf("hooks ran for %v", closed)
	}
	if row, _ := repo.Get(context.Background(), s.KeyHash()); row != nil {
		t.Error("closed session left in storage")
	}
	if _, err := m.Resolve(context.Background(), s.ID()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Resolve after close: %v", err)
	}
}

func TestManager_Purge(t *testing.T) {
	repo := repository.NewMemorySessionRepository()
	m := newTestManager(repo, &fakeVerifier{}, testNow)
	old, _ := m.Open(context.Background(), testUser(signedToken(t, testNow.Add(time.Minute))), "vi")
	fresh, _ := m.Open(context.Background(), testUser("tok"), "vi")

	m.now = func() time.Time { return testNow.Add(30 * time.Minute) }
	n, err := m.Purge(context.Background())
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if old.State() != StateClosed || fresh.State() != StateReady {
		t.Errorf("states: old=%v fresh=%v", old.State(), fresh.State())
	}
	if m.Live() != 1 {
		t.Errorf("live = %d, want 1", m.Live())
	}
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(repository.NewMemorySessionRepository(), &fakeVerifier{}, testNow)
	s, _ := m.Open(context.Background(), testUser("tok"), "vi")

	var seen *Session
	h := Middleware(m, func(w http.ResponseWriter, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"header", func(r *http.Request) { r.Header.Set(SessionHeader, s.ID()) }, http.StatusNoContent},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+s.ID()) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: s.ID()}) }, http.StatusNoContent},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"unknown", func(r *http.Request) { r.Header.Set(SessionHeader, "nope") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusNoContent && seen != s {
				t.Error("session not placed in request context")
			}
		})
	}
}
