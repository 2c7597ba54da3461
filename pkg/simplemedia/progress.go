package simplemedia

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// IngestEventType identifies the kind of IngestEvent
type IngestEventType string

const (
	IngestProgress  IngestEventType = "progress"
	IngestCompleted IngestEventType = "completed"
	IngestFailed    IngestEventType = "failed"
)

// IngestEvent is one entry of an ingestion stream. A stream carries any
// number of progress events followed by exactly one completed or failed event.
//
// A completed event may still carry Err when the quota adjustment failed
// after the upload finished.
type IngestEvent struct {
	Type       IngestEventType `json:"type"`
	ItemID     uuid.UUID       `json:"item_id"`
	Completion int             `json:"completion"`
	Item       *ContentItem    `json:"item,omitempty"`
	Err        error           `json:"-"`
}

// Terminal reports whether the event ends its stream.
func (e IngestEvent) Terminal() bool {
	return e.Type != IngestProgress
}

type emitFunc func(IngestEvent)

// uploadShell is a pending item that has already been persisted. Progress can
// only be reported through a shell, so no progress write can happen before
// the item owns an id.
type uploadShell struct {
	svc  *service
	item *ContentItem
	last int
	emit emitFunc
}

// createShell persists a pending item with completion 0 and no key.
func (s *service) createShell(ctx context.Context, item *ContentItem, emit emitFunc) (*uploadShell, error) {
	item.ID = uuid.Nil
	item.Key = ""
	item.UploadCompletion = CompletionPending
	item.UploadError = nil
	if err := s.repository.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	s.fire(ctx, "item_created", item.ID, func() error { return s.eventSink.ItemCreated(ctx, item) })
	return &uploadShell{svc: s, item: item, emit: emit}, nil
}

// report persists completion when it is strictly greater than the last
// persisted value. 100 is reserved for finalize.
func (sh *uploadShell) report(ctx context.Context, completion int) {
	if completion <= sh.last || completion >= CompletionComplete {
		return
	}
	applied, err := sh.svc.repository.UpdateProgress(ctx, sh.item.ID, completion)
	if err != nil {
		sh.svc.logger.DebugContext(ctx, "persist progress failed", "item_id", sh.item.ID, "completion", completion, "err", err)
		return
	}
	if !applied {
		return
	}
	sh.last = completion
	sh.item.UploadCompletion = completion
	if sh.emit != nil {
		sh.emit(IngestEvent{Type: IngestProgress, ItemID: sh.item.ID, Completion: completion})
	}
}

// observe returns a byte-count callback that reports completion against total.
func (sh *uploadShell) observe(ctx context.Context, total int64) func(read int64) {
	return func(read int64) {
		sh.report(ctx, percentOf(read, total))
	}
}

// fail records cause on the item and freezes its completion.
func (sh *uploadShell) fail(ctx context.Context, cause error) {
	msg := cause.Error()
	sh.item.UploadError = &msg
	sh.item.UploadCompletion = sh.last
	if err := sh.svc.repository.SaveItem(ctx, sh.item); err != nil {
		sh.svc.logger.ErrorContext(ctx, "record upload error failed", "item_id", sh.item.ID, "err", err)
	}
	sh.svc.fire(ctx, "item_failed", sh.item.ID, func() error { return sh.svc.eventSink.ItemFailed(ctx, sh.item, cause) })
}

// finalize marks the item complete with size bytes, persists it and charges
// the space exactly once. A ledger failure is returned alongside the
// completed item.
func (sh *uploadShell) finalize(ctx context.Context, size int64) (*ContentItem, error) {
	s := sh.svc
	item := sh.item
	item.UploadCompletion = CompletionComplete
	item.SizeBytes = size

	if s.signer != nil {
		if link, err := s.signer.Sign(ctx, item.Key, s.linkTTL); err != nil {
			s.logger.DebugContext(ctx, "initial link issue failed", "item_id", item.ID, "err", err)
		} else {
			expiresAt := link.ExpiresAt
			item.Location = link.URL
			item.LocationExpiresAt = &expiresAt
		}
	}

	if err := s.repository.SaveItem(ctx, item); err != nil {
		return item, &ItemError{ItemID: item.ID, Op: "finalize", Err: err}
	}
	s.fire(ctx, "item_completed", item.ID, func() error { return s.eventSink.ItemCompleted(ctx, item) })

	if err := s.ledger.Adjust(ctx, item.SpaceID, size); err != nil {
		return item, &ItemError{ItemID: item.ID, Op: "charge", Err: err}
	}
	return item, nil
}

func percentOf(read, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(read * 100 / total)
	if pct >= CompletionComplete {
		pct = CompletionComplete - 1
	}
	return pct
}

// countingReader counts bytes as they pass through and reports the running total.
type countingReader struct {
	r      io.Reader
	n      int64
	notify func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		if c.notify != nil {
			c.notify(c.n)
		}
	}
	return n, err
}
