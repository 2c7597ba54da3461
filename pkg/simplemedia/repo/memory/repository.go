package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// ErrSpaceExists is returned when creating a space whose id is taken
var ErrSpaceExists = errors.New("space already exists")

// Repository implements simplemedia.Repository and simplemedia.SpaceStore using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	items  map[uuid.UUID]*simplemedia.ContentItem
	spaces map[uuid.UUID]*simplemedia.Space
	now    func() time.Time
}

var (
	_ simplemedia.Repository = (*Repository)(nil)
	_ simplemedia.SpaceStore = (*Repository)(nil)
)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		items:  make(map[uuid.UUID]*simplemedia.ContentItem),
		spaces: make(map[uuid.UUID]*simplemedia.Space),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Item operations

func (r *Repository) SaveItem(ctx context.Context, item *simplemedia.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
		item.CreatedAt = now
		item.UpdatedAt = now
		r.items[item.ID] = item.Clone()
		return nil
	}

	existing, ok := r.items[item.ID]
	if !ok {
		return simplemedia.ErrItemNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = now
	r.items[item.ID] = item.Clone()
	return nil
}

func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (*simplemedia.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, simplemedia.ErrItemNotFound
	}
	return item.Clone(), nil
}

func (r *Repository) ListItems(ctx context.Context, filter simplemedia.ItemFilter) (*simplemedia.ItemPage, error) {
	r.mu.RLock()
	matched := make([]*simplemedia.ContentItem, 0)
	for _, item := range r.items {
		if matches(item, filter) {
			matched = append(matched, item.Clone())
		}
	}
	r.mu.RUnlock()

	sortItems(matched, filter.SortBy, filter.SortDesc)

	total := len(matched)
	start := max(filter.Offset, 0)
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < total {
		end = start + filter.Limit
	}
	return &simplemedia.ItemPage{Items: matched[start:end], Total: total}, nil
}

func (r *Repository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return simplemedia.ErrItemNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, completion int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return false, simplemedia.ErrItemNotFound
	}
	if item.UploadError != nil || completion <= item.UploadCompletion {
		return false, nil
	}
	item.UploadCompletion = completion
	item.UpdatedAt = r.now()
	return true, nil
}

func (r *Repository) UpdateLocation(ctx context.Context, id uuid.UUID, location string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return simplemedia.ErrItemNotFound
	}
	item.Location = location
	exp := expiresAt
	item.LocationExpiresAt = &exp
	item.UpdatedAt = r.now()
	return nil
}

func (r *Repository) DeactivateItem(ctx context.Context, id uuid.UUID, at time.Time) (*simplemedia.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, simplemedia.ErrItemNotFound
	}
	if item.DeactivatedAt != nil {
		return nil, simplemedia.ErrAlreadyRetired
	}
	t := at
	item.DeactivatedAt = &t
	item.UpdatedAt = r.now()
	return item.Clone(), nil
}

// Space operations

func (r *Repository) CreateSpace(ctx context.Context, space *simplemedia.Space) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if space.ID == uuid.Nil {
		space.ID = uuid.New()
	}
	if _, ok := r.spaces[space.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSpaceExists, space.ID)
	}
	now := r.now()
	if space.CreatedAt.IsZero() {
		space.CreatedAt = now
	}
	space.UpdatedAt = now
	cp := *space
	r.spaces[space.ID] = &cp
	return nil
}

func (r *Repository) GetSpace(ctx context.Context, id uuid.UUID) (*simplemedia.Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	space, ok := r.spaces[id]
	if !ok {
		return nil, simplemedia.ErrSpaceNotFound
	}
	cp := *space
	return &cp, nil
}

func (r *Repository) IncrementUsedBytes(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	space, ok := r.spaces[id]
	if !ok {
		return 0, simplemedia.ErrSpaceNotFound
	}
	space.UsedBytes += delta
	space.UpdatedAt = r.now()
	return space.UsedBytes, nil
}

func matches(item *simplemedia.ContentItem, f simplemedia.ItemFilter) bool {
	if f.SpaceID != nil && item.SpaceID != *f.SpaceID {
		return false
	}
	if f.SourceItemID != nil && (item.SourceItemID == nil || *item.SourceItemID != *f.SourceItemID) {
		return false
	}
	if f.MimeTypePrefix != "" && !strings.HasPrefix(item.MimeType, f.MimeTypePrefix) {
		return false
	}
	if f.OnlyComplete && !item.IsComplete() {
		return false
	}
	if !f.IncludeDeactivated && item.DeactivatedAt != nil {
		return false
	}
	return true
}

func sortItems(items []*simplemedia.ContentItem, by string, desc bool) {
	key := func(it *simplemedia.ContentItem) int64 {
		switch by {
		case "updated_at":
			return it.UpdatedAt.UnixNano()
		case "size_bytes":
			return it.SizeBytes
		default:
			return it.CreatedAt.UnixNano()
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if desc {
			a, b = b, a
		}
		ka, kb := key(a), key(b)
		if ka != kb {
			return ka < kb
		}
		return a.ID.String() < b.ID.String()
	})
}
