package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/errors"
)

// RunsInput contains parameters for the Runs operation.
type RunsInput struct {
	Site   string // optional exact site filter
	Kind   string // optional: run or rewrite
	Limit  int    // default: 20, max: 100
	Offset int
}

// RunsOutput contains the result of the Runs operation.
type RunsOutput struct {
	Runs       []db.Run   `json:"runs"`
	Pagination Pagination `json:"pagination"`
}

// Runs lists ledger runs, newest first.
func Runs(database *sql.DB, input RunsInput) (*RunsOutput, error) {
	if input.Offset < 0 {
		return nil, errors.NewInvalidRequest("offset must not be negative")
	}
	kind := strings.TrimSpace(input.Kind)
	if kind != "" && kind != db.KindRun && kind != db.KindRewrite {
		return nil, errors.NewInvalidRequest("kind must be one of: run, rewrite")
	}

	filter := db.RunFilter{
		Site:   strings.TrimRight(strings.TrimSpace(input.Site), "/"),
		Kind:   kind,
		Limit:  normalizeLimit(input.Limit),
		Offset: input.Offset,
	}
	runs, err := db.ListRuns(database, filter)
	if err != nil {
		return nil, err
	}
	total, err := db.CountRuns(database, filter)
	if err != nil {
		return nil, err
	}

	return &RunsOutput{
		Runs: runs,
		Pagination: Pagination{
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(runs) < total,
			Total:   total,
		},
	}, nil
}

// ShowRunInput addresses one run. An empty ID selects the latest run of
// kind "run" for Site.
type ShowRunInput struct {
	ID   string
	Site string
}

// ShowRunOutput is a run with everything it recorded.
type ShowRunOutput struct {
	Run      *db.Run            `json:"run"`
	Uploads  []db.Upload        `json:"uploads"`
	Rewrites []db.RewriteRecord `json:"rewrites"`
}

// ShowRun loads a run with its uploads and document rewrites.
func ShowRun(database *sql.DB, input ShowRunInput) (*ShowRunOutput, error) {
	run, err := resolveRun(database, input)
	if err != nil {
		return nil, err
	}
	uploads, err := db.ListUploads(database, run.ID)
	if err != nil {
		return nil, err
	}
	rewrites, err := db.ListRewrites(database, run.ID)
	if err != nil {
		return nil, err
	}
	return &ShowRunOutput{Run: run, Uploads: uploads, Rewrites: rewrites}, nil
}

func resolveRun(database *sql.DB, input ShowRunInput) (*db.Run, error) {
	id := strings.TrimSpace(input.ID)
	if id != "" {
		return db.GetRun(database, id)
	}
	site := strings.TrimRight(strings.TrimSpace(input.Site), "/")
	if site == "" {
		return nil, errors.NewInvalidRequest("run id or site is required")
	}
	return db.LatestRun(database, site, db.KindRun)
}
