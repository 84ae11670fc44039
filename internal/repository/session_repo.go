package repository

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/blake2b"

	"parkwise/internal/db"
)

// HashSessionID is the at-rest key for a raw session id.
func HashSessionID(rawID string) string {
	sum := blake2b.Sum256([]byte(rawID))
	return hex.EncodeToString(sum[:])
}

// SessionRepository stores sessions by hashed key. Get returns (nil, nil) when
// no session exists for the key.
type SessionRepository interface {
	Save(ctx context.Context, s *db.Session) error
	Get(ctx context.Context, keyHash string) (*db.Session, error)
	Touch(ctx context.Context, keyHash string, at time.Time) error
	Delete(ctx context.Context, keyHash string) error
	ExpiredKeys(ctx context.Context, now time.Time) ([]string, error)
	DeleteKeys(ctx context.Context, keyHashes []string) (int64, error)
}

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(conn *sql.DB) SessionRepository {
	return &sessionRepository{db: conn}
}

// EnsureSchema creates the sessions table if it does not exist.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, db.Schema); err != nil {
		return fmt.Errorf("error creating sessions schema: %w", err)
	}
	return nil
}

func (r *sessionRepository) Save(ctx context.Context, s *db.Session) error {
	query := `
		INSERT INTO sessions (key_hash, user_id, token, user_json, language, expires_at, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key_hash) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			token = EXCLUDED.token,
			user_json = EXCLUDED.user_json,
			language = EXCLUDED.language,
			expires_at = EXCLUDED.expires_at,
			last_seen_at = EXCLUDED.last_seen_at`
	_, err := r.db.ExecContext(ctx, query,
		s.KeyHash, s.UserID, s.Token, s.User, s.Language, s.ExpiresAt, s.CreatedAt, s.LastSeenAt)
	if err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, keyHash string) (*db.Session, error) {
	var s db.Session
	query := `
		SELECT key_hash, user_id, token, user_json, language, expires_at, created_at, last_seen_at
		FROM sessions WHERE key_hash = $1`
	err := r.db.QueryRowContext(ctx, query, keyHash).Scan(
		&s.KeyHash, &s.UserID, &s.Token, &s.User, &s.Language, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepository) Touch(ctx context.Context, keyHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $1 WHERE key_hash = $2`, at, keyHash)
	if err != nil {
		return fmt.Errorf("error touching session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, keyHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE key_hash = $1`, keyHash); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

func (r *sessionRepository) ExpiredKeys(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key_hash FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("error querying expired sessions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("error scanning session key: %w", err)
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating rows: %w", err)
	}
	return keys, nil
}

func (r *sessionRepository) DeleteKeys(ctx context.Context, keyHashes []string) (int64, error) {
	if len(keyHashes) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE key_hash = ANY($1)`, pq.Array(keyHashes))
	if err != nil {
		return 0, fmt.Errorf("error deleting sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}
	return n, nil
}

// memorySessionRepository is used when no database is configured.
type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]db.Session
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{sessions: make(map[string]db.Session)}
}

func (r *memorySessionRepository) Save(_ context.Context, s *db.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.User = append([]byte(nil), s.User...)
	r.sessions[s.KeyHash] = cp
	return nil
}

func (r *memorySessionRepository) Get(_ context.Context, keyHash string) (*db.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[keyHash]
	if !ok {
		return nil, nil
	}
	s.User = append([]byte(nil), s.User...)
	return &s, nil
}

func (r *memorySessionRepository) Touch(_ context.Context, keyHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[keyHash]; ok {
		s.LastSeenAt = at
		r.sessions[keyHash] = s
	}
	return nil
}

func (r *memorySessionRepository) Delete(_ context.Context, keyHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, keyHash)
	return nil
}

func (r *memorySessionRepository) ExpiredKeys(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for key, s := range r.sessions {
		if s.Expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *memorySessionRepository) DeleteKeys(_ context.Context, keyHashes []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, key := range keyHashes {
		if _, ok := r.sessions[key]; ok {
			delete(r.sessions, key)
			n++
		}
	}
	return n, nil
}
