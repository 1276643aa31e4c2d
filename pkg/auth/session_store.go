package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/logger"
)

const sessionKey = "auth:session"

// SessionStore holds the current session in memory and mirrors it into a
// durable record so it survives a restart. Reads never touch the durable
// record; Init loads it once.
type SessionStore struct {
	mu      sync.RWMutex
	current *Session

	durable kvstore.Store
	codec   Codec
	ttl     time.Duration
	logger  *slog.Logger
}

// NewSessionStore creates an empty store. A nil codec means JSONCodec.
func NewSessionStore(durable kvstore.Store, codec Codec, ttl time.Duration, log *slog.Logger) *SessionStore {
	if codec == nil {
		codec = JSONCodec{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &SessionStore{durable: durable, codec: codec, ttl: ttl, logger: log}
}

// Init loads the durable record. An unreadable record clears the store and is
// reported; an absent one leaves the store empty.
func (s *SessionStore) Init(ctx context.Context) error {
	data, err := s.durable.Get(ctx, sessionKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		s.set(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	derr := s.codec.Decode(data, &sess)
	if derr == nil && (!sess.Authenticated || sess.Identity.UserID == "") {
		derr = errors.New("incomplete session record")
	}
	if derr != nil {
		s.logger.WarnContext(ctx, "discarding unreadable session record", logger.Error(derr))
		return errors.Join(fmt.Errorf("failed to decode session: %w", derr), s.Clear(ctx))
	}

	s.set(&sess)
	return nil
}

// Read returns the current session.
func (s *SessionStore) Read() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Write replaces the session. The in-memory value is always updated; a
// durable write failure is returned for the caller to log.
func (s *SessionStore) Write(ctx context.Context, sess Session) error {
	s.set(&sess)

	data, err := s.codec.Encode(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.durable.Set(ctx, sessionKey, data, s.ttl); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Clear drops the session from memory and the durable record.
func (s *SessionStore) Clear(ctx context.Context) error {
	s.set(nil)
	if err := s.durable.Delete(ctx, sessionKey); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) set(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}
