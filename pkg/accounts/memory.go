package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a Directory held in a map.
type Memory struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
	now      func() time.Time
}

var _ Directory = (*Memory)(nil)

// NewMemory returns an empty directory. now may be nil.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{accounts: make(map[uuid.UUID]Account), now: now}
}

func (m *Memory) ByExternalID(_ context.Context, provider, externalID string) (Account, error) {
	return m.find(func(a Account) bool {
		return a.ExternalID != "" && a.Provider == provider && a.ExternalID == externalID
	})
}

func (m *Memory) ByEmail(_ context.Context, email string) (Account, error) {
	return m.find(func(a Account) bool { return email != "" && strings.EqualFold(a.Email, email) })
}

func (m *Memory) ByPhone(_ context.Context, phone string) (Account, error) {
	return m.find(func(a Account) bool { return phone != "" && a.Phone == phone })
}

func (m *Memory) NicknameTaken(_ context.Context, nickname string) (bool, error) {
	_, err := m.find(func(a Account) bool { return a.Nickname == nickname })
	return err == nil, nil
}

func (m *Memory) Create(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := m.checkUnique(a); err != nil {
		return Account{}, err
	}

	now := m.now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.accounts[a.ID] = a
	return a, nil
}

func (m *Memory) Update(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.accounts[a.ID]
	if !ok {
		return Account{}, ErrNotFound
	}
	if err := m.checkUnique(a); err != nil {
		return Account{}, err
	}

	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = m.now()
	m.accounts[a.ID] = a
	return a, nil
}

func (m *Memory) find(match func(Account) bool) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if match(a) {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

// checkUnique must be called with mu held.
func (m *Memory) checkUnique(a Account) error {
	fields := map[string]string{}
	for id, other := range m.accounts {
		if id == a.ID {
			continue
		}
		if a.Login != "" && other.Login == a.Login {
			fields["login"] = "login is already in use"
		}
		if a.Email != "" && strings.EqualFold(other.Email, a.Email) {
			fields["email"] = "email is already in use"
		}
		if a.Phone != "" && other.Phone == a.Phone {
			fields["phone_number"] = "phone number is already in use"
		}
		if a.Nickname != "" && other.Nickname == a.Nickname {
			fields["nickname"] = "nickname is already in use"
		}
		if a.ExternalID != "" && other.Provider == a.Provider && other.ExternalID == a.ExternalID {
			fields["external_id"] = "provider account is already linked"
		}
	}
	if len(fields) > 0 {
		return &DuplicateError{Fields: fields}
	}
	return nil
}
