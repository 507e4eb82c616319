package handlers

import (
	"context"
	"sync/atomic"
	"time"
)

// ThumbnailService is the thumbnail manager as seen by the handlers.
type ThumbnailService interface {
	Backend() string
	HasThumbnails(ctx context.Context, metadataID int64) (bool, error)
	GetThumbnail(ctx context.Context, metadataID, timestampMs int64) ([]byte, error)
	Invalidate(metadataID int64) bool
}

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	thumbs    ThumbnailService
	db        Pinger
	startTime time.Time
	ready     atomic.Bool
}

// New creates the handlers. db may be nil, in which case readiness only
// depends on SetReady.
func New(thumbs ThumbnailService, db Pinger) *Handlers {
	return &Handlers{
		thumbs:    thumbs,
		db:        db,
		startTime: time.Now(),
	}
}

// SetReady marks the service as ready (or not) to accept traffic.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
