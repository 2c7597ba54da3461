package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Resolver refreshes expired delivery links at read time.
type Resolver struct {
	signer  LinkSigner
	repo    Repository
	ttl     time.Duration
	skew    time.Duration
	clock   Clock
	logger  *slog.Logger
	metrics Metrics
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithResolverTTL sets the lifetime of newly issued links
func WithResolverTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithResolverSkew treats links expiring within skew as already expired
func WithResolverSkew(skew time.Duration) ResolverOption {
	return func(r *Resolver) {
		if skew >= 0 {
			r.skew = skew
		}
	}
}

// WithResolverClock overrides the time source
func WithResolverClock(clock Clock) ResolverOption {
	return func(r *Resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverMetrics sets the metrics recorder
func WithResolverMetrics(m Metrics) ResolverOption {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewResolver creates a resolver. A nil signer disables refreshing and a nil
// repo skips persisting refreshed links.
func NewResolver(signer LinkSigner, repo Repository, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		signer:  signer,
		repo:    repo,
		ttl:     defaultLinkTTL,
		clock:   func() time.Time { return time.Now().UTC() },
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NeedsRefresh reports whether item must be re-signed before it is returned.
// Only completed, active items with a blob key are ever signed.
func (r *Resolver) NeedsRefresh(item *ContentItem) bool {
	if item == nil || item.Key == "" || !item.IsComplete() || item.IsDeactivated() {
		return false
	}
	return !item.LinkValidAt(r.clock().Add(r.skew))
}

// Resolve re-signs every item whose link is missing or expired and persists
// the new link. Items are updated in place and returned. Signing failures are
// joined into the returned error and leave the item untouched; persistence
// failures are only logged.
func (r *Resolver) Resolve(ctx context.Context, items []*ContentItem) ([]*ContentItem, error) {
	if r.signer == nil {
		return items, nil
	}

	var errs []error
	for _, item := range items {
		if !r.NeedsRefresh(item) {
			continue
		}

		link, err := r.signer.Sign(ctx, item.Key, r.ttl)
		if err != nil {
			errs = append(errs, fmt.Errorf("sign link for item %s: %w", item.ID, err))
			continue
		}

		item.Location = link.URL
		expiresAt := link.ExpiresAt
		item.LocationExpiresAt = &expiresAt
		r.metrics.LinkRefreshed()

		if r.repo != nil && item.Persisted() {
			if err := r.repo.UpdateLocation(ctx, item.ID, link.URL, link.ExpiresAt); err != nil {
				r.logger.WarnContext(ctx, "persist refreshed link failed", "item_id", item.ID, "err", err)
			}
		}
	}
	return items, errors.Join(errs...)
}
