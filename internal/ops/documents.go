package ops

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"

	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

// applyDocuments rewrites every document of the configured content types and
// saves those that changed. Counters on run are updated as documents are
// saved. Saving stops at the first cancellation; other save failures are
// recorded and skipped.
func applyDocuments(ctx context.Context, database *sql.DB, store ContentStore, cfg *config.Config, run *db.Run, mapping rewrite.Mapping, progress Progress, log *slog.Logger) ([]db.RewriteRecord, error) {
	records := []db.RewriteRecord{}

	var docs []rewrite.Document
	for _, kind := range cfg.ContentTypes {
		if err := canceled(ctx, "listing "+kind); err != nil {
			return records, err
		}
		batch, err := store.ListDocuments(ctx, kind)
		if err != nil {
			return records, err
		}
		docs = append(docs, batch...)
	}
	run.DocumentsScanned = len(docs)

	results, err := rewrite.RewriteParallel(ctx, mapping, docs, cfg.RewriteWorkers)
	if err != nil {
		return records, err
	}

	var changed []rewrite.Result
	for _, res := range results {
		if res.Changed() {
			changed = append(changed, res)
		}
	}
	progress.emit(Event{Kind: EventScanned, Total: len(changed),
		Message: itoa(len(changed)) + " of " + itoa(len(docs)) + " documents reference replaced media"})

	for i, res := range changed {
		subject := res.Kind + "/" + res.DocumentID
		if err := canceled(ctx, "saving "+subject); err != nil {
			return records, err
		}

		rec := db.RewriteRecord{
			RunID:        run.ID,
			Kind:         res.Kind,
			DocumentID:   res.DocumentID,
			Title:        res.Title,
			Replacements: res.Count,
			Status:       db.RewriteSaved,
		}
		event := Event{Kind: EventDocumentSaved, Done: i + 1, Total: len(changed), Subject: subject}

		if err := store.SaveDocument(ctx, res.Kind, res.DocumentID, res.Text); err != nil {
			if errors.Is(err, errors.ErrCanceled) {
				return records, err
			}
			rec.Status = db.RewriteFailed
			rec.Error = errorText(err)
			event.Kind = EventDocumentFailed
			event.Message = rec.Error
			log.Warn("document save failed", "document", subject, "error", rec.Error)
		} else {
			run.DocumentsChanged++
			run.Replacements += res.Count
			log.Info("document rewritten", "document", subject, "replacements", res.Count)
		}

		if err := db.InsertRewrite(database, &rec); err != nil {
			return records, err
		}
		records = append(records, rec)
		progress.emit(event)
	}
	return records, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
