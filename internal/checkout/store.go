package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront/internal/lock"
)

// ErrSessionNotFound is returned when the session id is unknown or expired.
var ErrSessionNotFound = errors.New("checkout: session not found")

const sessionKeyPrefix = "checkout:session:"

// Locker serializes mutations of one session across requests and replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

var _ Locker = lock.Locker{}

// SessionStore persists sessions as JSON snapshots in Redis.
type SessionStore struct {
	R       *redis.Client
	Locker  Locker
	TTL     time.Duration
	LockTTL time.Duration
	Now     func() time.Time
}

func (s *SessionStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return s.TTL
}

func (s *SessionStore) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *SessionStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

// Create stores a new empty session.
func (s *SessionStore) Create(ctx context.Context) (*Session, error) {
	sess := NewSession(uuid.NewString())
	sess.Now = s.Now
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load reads a session by id.
func (s *SessionStore) Load(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	data, err := s.R.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess := Restore(snap)
	sess.Now = s.Now
	return sess, nil
}

// Save writes the session and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	snap := sess.Snapshot()
	snap.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.R.Set(ctx, sessionKey(snap.ID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Update runs fn on the session under the session lock and saves the result
// when fn succeeds.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		sess, err := s.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		if err := s.Save(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *SessionStore) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, sessionKey(id), s.lockTTL(), fn)
}
