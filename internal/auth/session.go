package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parkwise/internal/entities"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
	ErrSessionInvalid = errors.New("session could not be verified")
	ErrSessionClosed  = errors.New("session closed")
)

// State is where a session is in its lifecycle.
type State int

const (
	StateLoading State = iota
	StateVerifying
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateVerifying:
		return "verifying"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the authenticated context handed to everything acting for a user.
// Once closed it no longer yields a token, so holders of a stale reference fail
// with ErrSessionClosed instead of acting with revoked credentials.
type Session struct {
	id      string
	keyHash string

	mu        sync.RWMutex
	state     State
	token     string
	user      entities.User
	language  string
	createdAt time.Time
	expiresAt time.Time
}

func (s *Session) ID() string      { return s.id }
func (s *Session) KeyHash() string { return s.keyHash }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the backend bearer token while the session is ready.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return "", ErrSessionClosed
	}
	return s.token, nil
}

func (s *Session) User() entities.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.user
	u.Token = ""
	u.Profile.Vehicles = append([]entities.Vehicle(nil), s.user.Profile.Vehicles...)
	return u
}

func (s *Session) Vehicles() []entities.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.Vehicle(nil), s.user.Profile.Vehicles...)
}

func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = st
}

func (s *Session) setUser(u entities.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Token = ""
	s.user = u
}

func (s *Session) setVehicles(v []entities.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.Profile.Vehicles = append([]entities.Vehicle(nil), v...)
}

// close wipes credentials and reports whether this call did the closing.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.token = ""
	return true
}

// TokenExpiry reads the exp claim of a backend token without verifying its
// signature; the backend remains the authority on validity.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
