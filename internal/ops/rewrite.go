package ops

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/logging"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

// RewriteInput contains parameters for the Rewrite operation.
// Exactly one of RunID and Mapping must be set.
type RewriteInput struct {
	RunID   string          // replay the uploads of an earlier run
	Mapping rewrite.Mapping // explicit old -> new pairs

	// Revert swaps every pair (new -> old). Replaying a run backwards restores
	// the full-size source URL only: content that referenced a size variant
	// (e.g. photo-300x200.png) comes back pointing at the full-size image.
	Revert bool

	StateDir string // directory holding the run lock; empty skips locking
	Progress Progress
	Logger   *slog.Logger
}

// RewriteOutput contains the result of the Rewrite operation.
type RewriteOutput struct {
	Run       *db.Run            `json:"run"`
	Mapping   rewrite.Mapping    `json:"mapping"`
	Documents []db.RewriteRecord `json:"documents"`
}

// Rewrite applies a URL mapping to every post and page without uploading
// anything. It is recorded in the ledger as a run of kind "rewrite".
func Rewrite(ctx context.Context, database *sql.DB, store ContentStore, cfg *config.Config, input RewriteInput) (*RewriteOutput, error) {
	input.RunID = strings.TrimSpace(input.RunID)
	if input.RunID != "" && len(input.Mapping) > 0 {
		return nil, errors.NewInvalidRequest("specify either run_id or mapping, not both")
	}
	if input.RunID == "" && len(input.Mapping) == 0 {
		return nil, errors.NewInvalidRequest("run_id or mapping is required")
	}

	mapping := input.Mapping
	if input.RunID != "" {
		var err error
		mapping, err = MappingFromRun(database, input.RunID, input.Revert)
		if err != nil {
			return nil, err
		}
	}
	rw, err := rewrite.Compile(mapping)
	if err != nil {
		return nil, err
	}
	if input.RunID == "" && input.Revert {
		inv, err := rw.Inverse()
		if err != nil {
			return nil, err
		}
		mapping = inv.Pairs()
	}

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

	run := &db.Run{ID: NewRunID(), Kind: db.KindRewrite, Site: cfg.WordPressURL, SourceRunID: input.RunID}
	if err := db.InsertRun(database, run); err != nil {
		return nil, err
	}
	log = log.With(logging.FieldRunID, run.ID)
	log.Info("rewrite started", "site", run.Site, "pairs", len(mapping), "source_run_id", input.RunID, "revert", input.Revert)

	out := &RewriteOutput{Run: run, Mapping: mapping}
	docs, err := applyDocuments(ctx, database, store, cfg, run, mapping, input.Progress, log)
	out.Documents = docs
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return out, finish(database, log, run, err)
		}
		return nil, finish(database, log, run, err)
	}
	return out, finish(database, log, run, nil)
}

// MappingFromRun rebuilds the URL mapping of a run from its successful
// uploads: every old URL (source and size variants) maps to the new URL.
// With revert, each new URL maps back to the old source URL.
func MappingFromRun(database *sql.DB, runID string, revert bool) (rewrite.Mapping, error) {
	run, err := db.GetRun(database, runID)
	if err != nil {
		return nil, err
	}
	uploads, err := db.ListUploads(database, run.ID)
	if err != nil {
		return nil, err
	}

	mapping := rewrite.Mapping{}
	for _, u := range uploads {
		if u.Status == db.UploadFailed || u.NewURL == "" {
			continue
		}
		if revert {
			mapping = append(mapping, rewrite.Pair{Old: u.NewURL, New: u.OldURL})
			continue
		}
		olds := u.OldURLs
		if len(olds) == 0 {
			olds = []string{u.OldURL}
		}
		for _, old := range olds {
			mapping = append(mapping, rewrite.Pair{Old: old, New: u.NewURL})
		}
	}
	if len(mapping) == 0 {
		return nil, errors.NewInvalidRequest("run " + run.ID + " has no successful uploads to replay")
	}
	return mapping, nil
}
