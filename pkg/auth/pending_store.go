package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
	"github.com/dmitrymomot/authflow/pkg/logger"
)

const pendingKey = "auth:pending_profile"

// Tier is one storage backend of the PendingProfileStore.
type Tier struct {
	Name  string
	Store kvstore.Store
	TTL   time.Duration
	Codec Codec
}

// DefaultTiers returns a short-lived in-process tier followed by a longer
// lived durable tier. A nil durable store yields the memory tier only.
func DefaultTiers(memory, durable kvstore.Store, cfg Config) []Tier {
	tiers := []Tier{{Name: "memory", Store: memory, TTL: cfg.MemoryTierTTL}}
	if durable != nil {
		tiers = append(tiers, Tier{Name: "durable", Store: durable, TTL: cfg.DurableTierTTL})
	}
	return tiers
}

// PendingProfileStore keeps the profile of a user in the middle of signup in
// several ordered tiers. Earlier tiers win on recovery.
type PendingProfileStore struct {
	tiers  []Tier
	logger *slog.Logger
}

// NewPendingProfileStore creates a store over tiers, in priority order.
func NewPendingProfileStore(tiers []Tier, log *slog.Logger) *PendingProfileStore {
	if log == nil {
		log = logger.Discard()
	}
	ts := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Store == nil {
			continue
		}
		if t.Codec == nil {
			t.Codec = JSONCodec{}
		}
		ts = append(ts, t)
	}
	return &PendingProfileStore{tiers: ts, logger: log}
}

// Tiers returns the configured tier names in priority order.
func (s *PendingProfileStore) Tiers() []string {
	names := make([]string, len(s.tiers))
	for i, t := range s.tiers {
		names[i] = t.Name
	}
	return names
}

// WriteAll writes p to every tier. A failing tier does not stop the others;
// the number of successful writes is returned with the joined failures.
func (s *PendingProfileStore) WriteAll(ctx context.Context, p PendingProfile) (int, error) {
	if !p.Valid() {
		return 0, errors.New("pending profile has no external id")
	}

	var (
		written int
		errs    []error
	)
	for _, t := range s.tiers {
		data, err := t.Codec.Encode(p)
		if err == nil {
			err = t.Store.Set(ctx, pendingKey, data, t.TTL)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "pending profile tier write failed", logger.Tier(t.Name), logger.Error(err))
			errs = append(errs, fmt.Errorf("tier %s: %w", t.Name, err))
			continue
		}
		written++
	}
	return written, errors.Join(errs...)
}

// Recover returns the first valid profile in tier order.
func (s *PendingProfileStore) Recover(ctx context.Context) (PendingProfile, bool) {
	for _, t := range s.tiers {
		data, err := t.Store.Get(ctx, pendingKey)
		if err != nil {
			if !errors.Is(err, kvstore.ErrNotFound) {
				s.logger.WarnContext(ctx, "pending profile tier read failed", logger.Tier(t.Name), logger.Error(err))
			}
			continue
		}
		var p PendingProfile
		if err := t.Codec.Decode(data, &p); err != nil || !p.Valid() {
			s.logger.WarnContext(ctx, "pending profile tier unparsable", logger.Tier(t.Name), logger.Error(err))
			continue
		}
		return p, true
	}
	return PendingProfile{}, false
}

// Clear removes the profile from every tier.
func (s *PendingProfileStore) Clear(ctx context.Context) error {
	var errs []error
	for _, t := range s.tiers {
		if err := t.Store.Delete(ctx, pendingKey); err != nil {
			errs = append(errs, fmt.Errorf("tier %s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
