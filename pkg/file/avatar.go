package file

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
)

// DefaultMaxAvatarSize is the upload limit when none is configured.
const DefaultMaxAvatarSize = 5 << 20

// Avatars validates and stores profile pictures.
type Avatars struct {
	store   Storage
	maxSize int64
	prefix  string
}

type AvatarOption func(*Avatars)

func WithMaxAvatarSize(n int64) AvatarOption {
	return func(a *Avatars) {
		if n > 0 {
			a.maxSize = n
		}
	}
}

// WithAvatarPrefix sets the key prefix. Defaults to "avatars".
func WithAvatarPrefix(p string) AvatarOption {
	return func(a *Avatars) { a.prefix = p }
}

func NewAvatars(store Storage, opts ...AvatarOption) *Avatars {
	a := &Avatars{store: store, maxSize: DefaultMaxAvatarSize, prefix: "avatars"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Upload stores data as owner's avatar under a fresh key. The content must
// sniff as an image; the client filename only supplies a fallback extension.
func (a *Avatars) Upload(ctx context.Context, owner, filename string, data []byte) (Object, error) {
	if len(data) == 0 {
		return Object{}, ErrEmptyFile
	}
	if int64(len(data)) > a.maxSize {
		return Object{}, fmt.Errorf("file size %d bytes exceeds %d bytes limit: %w", len(data), a.maxSize, ErrFileTooLarge)
	}

	mimeType := DetectMIMEType(data)
	if !IsImage(data) {
		return Object{}, fmt.Errorf("%w: %s", ErrMIMETypeNotAllowed, mimeType)
	}

	owner = SanitizeFilename(owner)
	key := path.Join(a.prefix, owner, uuid.NewString()+ExtensionFor(mimeType, filename))

	return a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType)
}

// Remove deletes a stored avatar by key.
func (a *Avatars) Remove(ctx context.Context, key string) error {
	return a.store.Delete(ctx, key)
}
