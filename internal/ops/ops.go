// Package ops runs the replacement pipeline: plan, upload, rewrite, and the
// run ledger queries built on top of it.
package ops

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/logging"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// MediaLibrary is the remote media library.
type MediaLibrary interface {
	ListMedia(ctx context.Context) ([]asset.RemoteAsset, error)
	UploadMedia(ctx context.Context, local asset.LocalAsset) (*asset.RemoteAsset, error)
}

// ContentStore reads and writes posts and pages.
type ContentStore interface {
	ListDocuments(ctx context.Context, kind string) ([]rewrite.Document, error)
	SaveDocument(ctx context.Context, kind, id, text string) error
}

// EventKind identifies a progress event.
type EventKind string

const (
	EventPlanned        EventKind = "planned"
	EventUploaded       EventKind = "uploaded"
	EventReused         EventKind = "reused"
	EventUploadFailed   EventKind = "upload_failed"
	EventScanned        EventKind = "scanned"
	EventDocumentSaved  EventKind = "document_saved"
	EventDocumentFailed EventKind = "document_failed"
)

// Event reports one step of a run. Done and Total count within the stage.
type Event struct {
	Kind    EventKind `json:"kind"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	Subject string    `json:"subject,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Progress receives events synchronously from the running operation.
type Progress func(Event)

func (p Progress) emit(e Event) {
	if p != nil {
		p(e)
	}
}

// NewRunID returns a new time-ordered run identifier.
func NewRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func componentLogger(logger *slog.Logger) *slog.Logger {
	return logging.NewComponentLogger(logger, "ops")
}

// canceled reports whether ctx is done, as a CANCELED error naming the stage
// that will not start.
func canceled(ctx context.Context, stage string) error {
	if ctx.Err() != nil {
		return errors.NewCanceled(stage)
	}
	return nil
}

// errorText is the message stored in the ledger for err.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// normalizeLimit applies the default and maximum list limits.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
