package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account is a local user.
type Account struct {
	ID         uuid.UUID
	Login      string
	Provider   string
	ExternalID string
	Name       string
	Nickname   string
	Email      string
	Phone      string
	BirthDate  string
	Address    string
	AvatarURL  string
	Verified   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Linked reports whether a provider subject is attached.
func (a Account) Linked() bool { return a.ExternalID != "" }

// Directory persists accounts. Lookups return ErrNotFound when nothing
// matches; Create and Update return a *DuplicateError on unique clashes.
type Directory interface {
	ByExternalID(ctx context.Context, provider, externalID string) (Account, error)
	ByEmail(ctx context.Context, email string) (Account, error)
	ByPhone(ctx context.Context, phone string) (Account, error)
	NicknameTaken(ctx context.Context, nickname string) (bool, error)
	Create(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, a Account) (Account, error)
}
