package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"parkwise/internal/db"
	"parkwise/internal/entities"
	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
	"parkwise/internal/repository"
)

const DefaultSessionTTL = 24 * time.Hour

// Verifier confirms a stored token is still accepted by the backend.
type Verifier interface {
	Profile(ctx context.Context, token string) (*entities.User, error)
}

// Manager owns every live session. Sessions are persisted by hashed id so they
// survive restarts; a session loaded from storage is re-verified with the
// backend before it is handed out.
type Manager struct {
	repo     repository.SessionRepository
	verifier Verifier
	log      *logger.Logger
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	live    map[string]*Session
	closers []func(*Session)
}

func NewManager(repo repository.SessionRepository, verifier Verifier, ttl time.Duration, log *logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		repo:     repo,
		verifier: verifier,
		log:      log,
		ttl:      ttl,
		now:      time.Now,
		live:     make(map[string]*Session),
	}
}

// OnClose registers fn to run once for every session that is closed, whether
// by logout, expiry or failed verification.
func (m *Manager) OnClose(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, fn)
}

// Open starts a ready session for a freshly authenticated user.
func (m *Manager) Open(ctx context.Context, user *entities.User, language string) (*Session, error) {
	if user == nil || user.Token == "" {
		return nil, fmt.Errorf("open session: %w", ErrSessionInvalid)
	}
	now := m.now()
	id := uuid.NewString()
	s := &Session{
		id:        id,
		keyHash:   repository.HashSessionID(id),
		state:     StateReady,
		token:     user.Token,
		language:  language,
		createdAt: now,
		expiresAt: m.expiry(user.Token, now),
	}
	s.setUser(*user)

	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.live[s.keyHash] = s
	m.mu.Unlock()

	m.log.Info("session opened", "user_id", user.ID, "expires_at", s.expiresAt)
	return s, nil
}

// Resolve returns the ready session for a raw session id, loading and
// re-verifying it from storage when it is not live in this process.
func (m *Manager) Resolve(ctx context.Context, rawID string) (*Session, error) {
	if rawID == "" {
		return nil, ErrNoSession
	}
	key := repository.HashSessionID(rawID)

	m.mu.Lock()
	s, ok := m.live[key]
	m.mu.Unlock()
	if ok {
		if s.Expired(m.now()) {
			m.Close(ctx, s)
			return nil, ErrSessionExpired
		}
		if s.State() != StateReady {
			return nil, ErrSessionClosed
		}
		return s, nil
	}

	return m.load(ctx, rawID, key)
}

func (m *Manager) load(ctx context.Context, rawID, key string) (*Session, error) {
	row, err := m.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if row == nil {
		return nil, ErrNoSession
	}

	token, err := repository.OpenToken(rawID, row.Token)
	if err != nil {
		m.discard(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	s := &Session{
		id:        rawID,
		keyHash:   key,
		state:     StateLoading,
		token:     token,
		language:  row.Language,
		createdAt: row.CreatedAt,
		expiresAt: row.ExpiresAt,
	}
	if row.Expired(m.now()) {
		m.discard(ctx, key)
		return nil, ErrSessionExpired
	}

	var user entities.User
	if err := json.Unmarshal(row.User, &user); err != nil {
		m.discard(ctx, key)
		return nil, fmt.Errorf("%w: stored user: %v", ErrSessionInvalid, err)
	}
	s.setUser(user)

	s.setState(StateVerifying)
	fresh, err := m.verifier.Profile(ctx, token)
	if err != nil {
		m.discard(ctx, key)
		if apperrors.StatusOf(err) == http.StatusUnauthorized {
			m.log.Info("stored session rejected by backend", "user_id", row.UserID)
			return nil, ErrSessionExpired
		}
		m.log.Warn("stored session could not be verified", "user_id", row.UserID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	s.setUser(*fresh)
	s.setState(StateReady)

	if err := m.persist(ctx, s); err != nil {
		m.log.Warn("could not refresh stored session", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.live[key]; ok {
		return existing, nil
	}
	m.live[key] = s
	return s, nil
}

// UpdateVehicles refreshes the cached vehicle list after a vehicle change.
func (m *Manager) UpdateVehicles(ctx context.Context, s *Session, vehicles []entities.Vehicle) {
	s.setVehicles(vehicles)
	if err := m.persist(ctx, s); err != nil {
		m.log.Warn("could not persist vehicle change", "error", err)
	}
}

// Close tears the session down: credentials are wiped, storage is cleared and
// every OnClose hook runs. Closing twice is a no-op.
func (m *Manager) Close(ctx context.Context, s *Session) {
	if s == nil || !s.close() {
		return
	}

	m.mu.Lock()
	if m.live[s.keyHash] == s {
		delete(m.live, s.keyHash)
	}
	closers := append([]func(*Session){}, m.closers...)
	m.mu.Unlock()

	m.discard(ctx, s.keyHash)
	for _, fn := range closers {
		fn(s)
	}
}

// Purge removes expired sessions from storage and closes any live copies.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for _, s := range m.live {
		if s.Expired(now) {
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		m.Close(ctx, s)
	}

	keys, err := m.repo.ExpiredKeys(ctx, now)
	if err != nil {
		return 0, err
	}
	n, err := m.repo.DeleteKeys(ctx, keys)
	if err != nil {
		return 0, err
	}
	return n + int64(len(expired)), nil
}

// Live reports how many sessions are active in this process.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) expiry(token string, now time.Time) time.Time {
	limit := now.Add(m.ttl)
	if exp, ok := TokenExpiry(token); ok && exp.Before(limit) {
		return exp
	}
	return limit
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	s.mu.RLock()
	userJSON, err := json.Marshal(s.user)
	row := &db.Session{
		KeyHash:    s.keyHash,
		UserID:     s.user.ID,
		Token:      s.token,
		User:       userJSON,
		Language:   s.language,
		ExpiresAt:  s.expiresAt,
		CreatedAt:  s.createdAt,
		LastSeenAt: m.now(),
	}
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	if row.Token == "" {
		return ErrSessionClosed
	}
	if row.Token, err = repository.SealToken(s.id, row.Token); err != nil {
		return err
	}
	return m.repo.Save(ctx, row)
}

func (m *Manager) discard(ctx context.Context, key string) {
	if err := m.repo.Delete(ctx, key); err != nil {
		m.log.Warn("could not delete stored session", "error", err)
	}
}
