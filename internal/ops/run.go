package ops

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/logging"
	"github.com/hpungsan/wpswap/internal/match"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

// RunInput contains parameters for the Run operation.
type RunInput struct {
	Folder   string // default: cfg.WebPFolder
	StateDir string // directory holding the run lock; empty skips locking
	Progress Progress
	Logger   *slog.Logger
}

// RunOutput contains the result of the Run operation.
type RunOutput struct {
	Run       *db.Run            `json:"run"`
	Plan      *PlanOutput        `json:"plan"`
	Uploads   []db.Upload        `json:"uploads"`
	Mapping   rewrite.Mapping    `json:"mapping"`
	Documents []db.RewriteRecord `json:"documents"`
}

// Run matches local files to remote media, uploads each replacement (or
// reuses an earlier upload of the same bytes), then rewrites every post and
// page that references an old URL.
//
// Upload and save failures are recorded per item and do not stop the run.
// An invalid mapping stops the run before any document is read. When ctx is
// canceled the run stops before the next upload or document save; the
// partial output is returned together with a CANCELED error.
func Run(ctx context.Context, database *sql.DB, lib MediaLibrary, store ContentStore, cfg *config.Config, input RunInput) (*RunOutput, error) {
	log := componentLogger(input.Logger)

	if input.StateDir != "" {
		unlock, err := db.Lock(input.StateDir)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(); err != nil {
				log.Warn("failed to release run lock", logging.Error(err))
			}
		}()
	}

	run := &db.Run{ID: NewRunID(), Kind: db.KindRun, Site: cfg.WordPressURL, Folder: input.Folder}
	if run.Folder == "" {
		run.Folder = cfg.WebPFolder
	}
	if err := db.InsertRun(database, run); err != nil {
		return nil, err
	}
	log = log.With(logging.FieldRunID, run.ID)
	log.Info("run started", "site", run.Site, "folder", run.Folder)

	out := &RunOutput{
		Run:       run,
		Uploads:   []db.Upload{},
		Mapping:   rewrite.Mapping{},
		Documents: []db.RewriteRecord{},
	}

	plan, err := Plan(ctx, lib, cfg, PlanInput{Folder: run.Folder})
	if err != nil {
		return nil, finish(database, log, run, err)
	}
	out.Plan = plan
	run.Matched = len(plan.Matches)
	input.Progress.emit(Event{Kind: EventPlanned, Total: len(plan.Matches),
		Message: "matched " + itoa(len(plan.Matches)) + " of " + itoa(plan.LocalCount) + " local files"})
	for _, issue := range plan.Issues {
		log.Debug("local file not matched", "code", issue.Code, "path", issue.Path)
	}

	for i, pair := range plan.Matches {
		if err := canceled(ctx, "upload of "+pair.Local.Path); err != nil {
			return out, finish(database, log, run, err)
		}

		up, err := replace(ctx, database, lib, run, pair)
		if err != nil && errors.Is(err, errors.ErrCanceled) {
			return out, finish(database, log, run, err)
		}
		if err != nil {
			// ledger write failure
			return nil, finish(database, log, run, err)
		}
		out.Uploads = append(out.Uploads, *up)

		event := Event{Done: i + 1, Total: len(plan.Matches), Subject: pair.Local.Path}
		switch up.Status {
		case db.UploadUploaded:
			run.Uploaded++
			event.Kind = EventUploaded
			log.Info("uploaded replacement", "path", up.LocalPath, "old_media_id", up.OldMediaID, "new_url", up.NewURL)
		case db.UploadReused:
			run.Reused++
			event.Kind = EventReused
			log.Info("reused earlier upload", "path", up.LocalPath, "old_media_id", up.OldMediaID, "new_url", up.NewURL)
		default:
			run.UploadFailures++
			event.Kind = EventUploadFailed
			event.Message = up.Error
			log.Warn("upload failed", "path", up.LocalPath, "error", up.Error)
		}
		input.Progress.emit(event)

		if up.Status != db.UploadFailed {
			for _, old := range up.OldURLs {
				out.Mapping = append(out.Mapping, rewrite.Pair{Old: old, New: up.NewURL})
			}
		}
	}

	if len(out.Mapping) == 0 {
		log.Info("nothing to rewrite")
		return out, finish(database, log, run, nil)
	}
	if _, err := rewrite.Compile(out.Mapping); err != nil {
		return nil, finish(database, log, run, err)
	}

	docs, err := applyDocuments(ctx, database, store, cfg, run, out.Mapping, input.Progress, log)
	out.Documents = docs
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return out, finish(database, log, run, err)
		}
		return nil, finish(database, log, run, err)
	}
	return out, finish(database, log, run, nil)
}

// replace uploads the local side of pair, or reuses an earlier upload of the
// same content for the same remote record, and records the outcome.
// The returned error is non-nil only for cancellation or a ledger failure.
func replace(ctx context.Context, database *sql.DB, lib MediaLibrary, run *db.Run, pair match.Pair) (*db.Upload, error) {
	up := &db.Upload{
		RunID:       run.ID,
		Site:        run.Site,
		LocalPath:   pair.Local.Path,
		ContentHash: pair.Local.ContentHash,
		OldMediaID:  pair.Remote.ID,
		OldURL:      pair.Remote.URL,
		OldURLs:     pair.Remote.URLs(),
	}

	var prior *db.Upload
	if up.ContentHash != "" {
		found, err := db.FindUpload(database, run.Site, pair.Remote.ID, up.ContentHash)
		switch {
		case err == nil:
			prior = found
		case !errors.Is(err, errors.ErrNotFound):
			return nil, err
		}
	}

	if prior != nil {
		up.Status = db.UploadReused
		up.NewMediaID = prior.NewMediaID
		up.NewURL = prior.NewURL
	} else {
		created, err := lib.UploadMedia(ctx, pair.Local)
		switch {
		case err != nil && errors.Is(err, errors.ErrCanceled):
			return nil, err
		case err != nil:
			up.Status = db.UploadFailed
			up.Error = errorText(err)
		default:
			up.Status = db.UploadUploaded
			up.NewMediaID = created.ID
			up.NewURL = created.URL
		}
	}

	if err := db.InsertUpload(database, up); err != nil {
		return nil, err
	}
	return up, nil
}

// finish records the final state of run and returns cause unchanged.
func finish(database *sql.DB, log *slog.Logger, run *db.Run, cause error) error {
	switch {
	case cause == nil:
		run.Status = db.RunCompleted
	case errors.Is(cause, errors.ErrCanceled):
		run.Status = db.RunCanceled
	default:
		run.Status = db.RunFailed
	}
	run.Error = errorText(cause)

	if err := db.FinishRun(database, run); err != nil {
		log.Error("failed to record run result", logging.Error(err))
		if cause == nil {
			return err
		}
	}
	log.Info("run finished", "status", run.Status,
		"uploaded", run.Uploaded, "reused", run.Reused, "upload_failures", run.UploadFailures,
		"documents_changed", run.DocumentsChanged, "replacements", run.Replacements)
	return cause
}
