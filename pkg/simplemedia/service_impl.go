package simplemedia

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

const (
	defaultLinkTTL             = time.Hour
	defaultMaxVariantDimension = 1024
	defaultVariantConcurrency  = 4
	defaultHeaderProbeBytes    = 256 << 10
)

// service implements the Service interface
type service struct {
	repository Repository
	spaces     SpaceStore
	blobStore  BlobStore
	signer     LinkSigner
	ledger     *Ledger
	resolver   *Resolver

	generators      map[string]VariantGenerator
	defaultProvider string
	downloader      Downloader
	transcoder      StreamTranscoder
	prober          DurationProber

	eventSink EventSink
	metrics   Metrics
	logger    *slog.Logger
	clock     Clock
	keys      objectkey.Generator

	linkTTL             time.Duration
	linkSkew            time.Duration
	maxVariantDimension uint
	variantConcurrency  int
	headerProbeBytes    int64
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the content record store
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithSpaceStore sets the store that owns spaces and their used-bytes counter
func WithSpaceStore(spaces SpaceStore) Option {
	return func(s *service) {
		s.spaces = spaces
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithLinkSigner sets the delivery link issuer. When unset, a blob store that
// also implements LinkSigner is used.
func WithLinkSigner(signer LinkSigner) Option {
	return func(s *service) {
		s.signer = signer
	}
}

// WithLinkTTL sets the lifetime of issued delivery links
func WithLinkTTL(ttl time.Duration) Option {
	return func(s *service) {
		if ttl > 0 {
			s.linkTTL = ttl
		}
	}
}

// WithLinkRefreshSkew refreshes links that expire within skew of the read
func WithLinkRefreshSkew(skew time.Duration) Option {
	return func(s *service) {
		s.linkSkew = skew
	}
}

// WithVariantGenerator registers a provider under name. The first registered
// provider is the default.
func WithVariantGenerator(name string, gen VariantGenerator) Option {
	return func(s *service) {
		if s.generators == nil {
			s.generators = make(map[string]VariantGenerator)
		}
		if s.defaultProvider == "" {
			s.defaultProvider = name
		}
		s.generators[name] = gen
	}
}

// WithDefaultProvider selects the provider used when a request names none
func WithDefaultProvider(name string) Option {
	return func(s *service) {
		s.defaultProvider = name
	}
}

// WithDownloader sets the fetcher for generated variant URLs
func WithDownloader(d Downloader) Option {
	return func(s *service) {
		s.downloader = d
	}
}

// WithTranscoder sets the stream transcoder. It also probes video durations
// unless WithDurationProber overrides it.
func WithTranscoder(t StreamTranscoder) Option {
	return func(s *service) {
		s.transcoder = t
	}
}

// WithDurationProber sets the video duration prober
func WithDurationProber(p DurationProber) Option {
	return func(s *service) {
		s.prober = p
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(clock Clock) Option {
	return func(s *service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithKeyGenerator sets the blob key layout
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		if g != nil {
			s.keys = g
		}
	}
}

// WithMaxVariantDimension bounds the longest side of images sent to providers
func WithMaxVariantDimension(px uint) Option {
	return func(s *service) {
		s.maxVariantDimension = px
	}
}

// WithVariantConcurrency limits concurrent variant downloads and ingestions
func WithVariantConcurrency(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.variantConcurrency = n
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		generators:          make(map[string]VariantGenerator),
		logger:              slog.Default(),
		clock:               func() time.Time { return time.Now().UTC() },
		keys:                objectkey.NewSpaceGenerator(),
		linkTTL:             defaultLinkTTL,
		maxVariantDimension: defaultMaxVariantDimension,
		variantConcurrency:  defaultVariantConcurrency,
		headerProbeBytes:    defaultHeaderProbeBytes,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.spaces == nil {
		return nil, fmt.Errorf("space store is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if len(s.generators) > 0 && s.downloader == nil {
		return nil, fmt.Errorf("downloader is required when variant generators are registered")
	}
	if s.defaultProvider != "" && len(s.generators) > 0 {
		if _, ok := s.generators[s.defaultProvider]; !ok {
			return nil, fmt.Errorf("default provider %q is not registered", s.defaultProvider)
		}
	}

	if s.signer == nil {
		if signer, ok := s.blobStore.(LinkSigner); ok {
			s.signer = signer
		}
	}
	if s.prober == nil && s.transcoder != nil {
		s.prober = s.transcoder
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}

	s.ledger = NewLedger(s.spaces, WithLedgerLogger(s.logger), WithLedgerMetrics(s.metrics))
	s.resolver = NewResolver(s.signer, s.repository,
		WithResolverTTL(s.linkTTL),
		WithResolverSkew(s.linkSkew),
		WithResolverClock(s.clock),
		WithResolverLogger(s.logger),
		WithResolverMetrics(s.metrics),
	)

	return s, nil
}

// Space operations

func (s *service) CreateSpace(ctx context.Context, req CreateSpaceRequest) (*Space, error) {
	now := s.clock()
	space := &Space{
		ID:        req.ID,
		OwnerID:   req.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if space.ID == uuid.Nil {
		space.ID = uuid.New()
	}
	if err := s.spaces.CreateSpace(ctx, space); err != nil {
		return nil, fmt.Errorf("create space %s: %w", space.ID, err)
	}
	return space, nil
}

func (s *service) GetSpace(ctx context.Context, id uuid.UUID) (*Space, error) {
	return s.spaces.GetSpace(ctx, id)
}

// Reads

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*ContentItem, error) {
	item, err := s.repository.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.Resolve(ctx, []*ContentItem{item})
	return resolved[0], err
}

func (s *service) ListItems(ctx context.Context, filter ItemFilter) (*ItemPage, error) {
	page, err := s.repository.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	items, err := s.resolver.Resolve(ctx, page.Items)
	page.Items = items
	return page, err
}

func (s *service) ResolveItems(ctx context.Context, items []*ContentItem) ([]*ContentItem, error) {
	return s.resolver.Resolve(ctx, items)
}

// RetireItem marks the item deactivated and posts the compensating negative
// adjustment in the same call. Only the first retirement of an item debits
// the space.
func (s *service) RetireItem(ctx context.Context, id uuid.UUID) (*ContentItem, error) {
	item, err := s.repository.DeactivateItem(ctx, id, s.clock())
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "retire", Err: err}
	}

	var adjustErr error
	if item.IsComplete() && item.SizeBytes > 0 {
		adjustErr = s.ledger.Adjust(ctx, item.SpaceID, -item.SizeBytes)
	}

	s.fire(ctx, "item_retired", item.ID, func() error { return s.eventSink.ItemRetired(ctx, item) })

	if adjustErr != nil {
		return item, &ItemError{ItemID: id, Op: "retire", Err: adjustErr}
	}
	return item, nil
}

// fire delivers an event and logs a sink failure. Sink errors never fail the operation.
func (s *service) fire(ctx context.Context, event string, itemID uuid.UUID, fn func() error) {
	if err := fn(); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", event, "item_id", itemID, "err", err)
	}
}

func (s *service) generator(name string) (VariantGenerator, string, error) {
	if name == "" {
		name = s.defaultProvider
	}
	gen, ok := s.generators[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return gen, name, nil
}

type noopMetrics struct{}

func (noopMetrics) IngestFinished(string, int64) {}
func (noopMetrics) QuotaAdjusted(string)         {}
func (noopMetrics) LinkRefreshed()               {}
