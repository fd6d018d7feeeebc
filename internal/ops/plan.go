package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/localfs"
	"github.com/hpungsan/wpswap/internal/match"
)

// PlanInput contains parameters for the Plan operation.
type PlanInput struct {
	Folder string // default: cfg.WebPFolder
}

// Issue is a per-asset problem reported alongside a plan.
type Issue struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Path    string           `json:"path,omitempty"`
}

// PlanOutput is the matching preview. Nothing is written.
type PlanOutput struct {
	Folder           string                 `json:"folder"`
	LocalCount       int                    `json:"local_count"`
	RemoteCount      int                    `json:"remote_count"`
	Matches          []match.Pair           `json:"matches"`
	UnmatchedLocals  []match.UnmatchedLocal `json:"unmatched_locals"`
	UnmatchedRemotes []asset.RemoteAsset    `json:"unmatched_remotes"`
	Issues           []Issue                `json:"issues"`
}

// Plan lists local replacement files and remote media, keeps the remotes
// whose extension is replaceable, and matches them by normalized stem.
func Plan(ctx context.Context, lib MediaLibrary, cfg *config.Config, input PlanInput) (*PlanOutput, error) {
	folder := strings.TrimSpace(input.Folder)
	if folder == "" {
		folder = cfg.WebPFolder
	}
	if folder == "" {
		return nil, errors.NewInvalidRequest("folder is required")
	}

	locals, err := localfs.List(folder, cfg.LocalExtensions)
	if err != nil {
		return nil, err
	}
	if err := canceled(ctx, "listing media"); err != nil {
		return nil, err
	}

	all, err := lib.ListMedia(ctx)
	if err != nil {
		return nil, err
	}
	remotes := make([]asset.RemoteAsset, 0, len(all))
	for _, r := range all {
		if asset.HasExtension(r.Filename, cfg.RemoteExtensions) {
			remotes = append(remotes, r)
		}
	}

	result := match.Match(locals, remotes)

	return &PlanOutput{
		Folder:           folder,
		LocalCount:       len(locals),
		RemoteCount:      len(remotes),
		Matches:          result.Matches,
		UnmatchedLocals:  result.UnmatchedLocals,
		UnmatchedRemotes: result.UnmatchedRemotes,
		Issues:           Issues(result),
	}, nil
}

// Issues flattens the per-asset problems of a matching pass.
func Issues(result *match.Result) []Issue {
	issues := make([]Issue, 0, len(result.UnmatchedLocals))
	for _, e := range result.Issues() {
		path, _ := e.Details["path"].(string)
		issues = append(issues, Issue{Code: e.Code, Message: e.Message, Path: path})
	}
	return issues
}
