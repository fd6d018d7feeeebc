package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

func TestRewrite_ReplaysRun(t *testing.T) {
	dir, lib, store := siteFixture(t)
	database := openTestDB(t)
	cfg := testConfig(dir)

	first, err := Run(context.Background(), database, lib, store, cfg, RunInput{})
	require.NoError(t, err)

	// content restored from a backup still points at the old media
	_, _, restored := siteFixture(t)
	out, err := Rewrite(context.Background(), database, restored, cfg, RewriteInput{RunID: first.Run.ID})
	require.NoError(t, err)

	require.Equal(t, db.KindRewrite, out.Run.Kind)
	require.Equal(t, first.Run.ID, out.Run.SourceRunID)
	require.Equal(t, db.RunCompleted, out.Run.Status)
	require.Equal(t, 2, out.Run.DocumentsChanged)
	require.Len(t, out.Mapping, 3)
	require.Equal(t, `<figure><img src="`+newBase+`hero.webp"></figure>`, restored.text("pages", "20"))
	require.Len(t, lib.uploaded, 2, "rewrite never uploads")
}

func TestRewrite_RevertsRun(t *testing.T) {
	dir, lib, store := siteFixture(t)
	database := openTestDB(t)
	cfg := testConfig(dir)

	first, err := Run(context.Background(), database, lib, store, cfg, RunInput{})
	require.NoError(t, err)

	out, err := Rewrite(context.Background(), database, store, cfg, RewriteInput{RunID: first.Run.ID, Revert: true})
	require.NoError(t, err)

	require.Len(t, out.Mapping, 2, "each new URL maps back to one source URL")
	require.Equal(t, `<figure><img src="`+uploadsBase+`hero-scaled.png"></figure>`, store.text("pages", "20"))
	// size variants collapse to the full-size source URL
	require.Equal(t,
		`<img src="`+uploadsBase+`sunset.png"><img src="`+uploadsBase+`sunset.png">`,
		store.text("posts", "10"))
}

func TestRewrite_ExplicitMapping(t *testing.T) {
	store := newFakeStore()
	store.add("posts", "1", "A", "see https://a.test/x.png and https://a.test/x.png")
	store.add("pages", "2", "B", "see https://a.test/y.png")
	database := openTestDB(t)

	mapping := rewrite.Mapping{{Old: "https://a.test/x.png", New: "https://a.test/x.webp"}}
	out, err := Rewrite(context.Background(), database, store, testConfig(""), RewriteInput{Mapping: mapping})
	require.NoError(t, err)
	require.Equal(t, 2, out.Run.Replacements)
	require.Equal(t, "see https://a.test/x.webp and https://a.test/x.webp", store.text("posts", "1"))
	require.Equal(t, "see https://a.test/y.png", store.text("pages", "2"))

	back, err := Rewrite(context.Background(), database, store, testConfig(""), RewriteInput{Mapping: mapping, Revert: true})
	require.NoError(t, err)
	require.Equal(t, rewrite.Mapping{{Old: "https://a.test/x.webp", New: "https://a.test/x.png"}}, back.Mapping)
	require.Equal(t, "see https://a.test/x.png and https://a.test/x.png", store.text("posts", "1"))
}

func TestRewrite_Errors(t *testing.T) {
	database := openTestDB(t)
	store := newFakeStore()
	cfg := testConfig("")
	pair := rewrite.Mapping{{Old: "https://a.test/x.png", New: "https://a.test/x.webp"}}

	tests := []struct {
		name  string
		input RewriteInput
		code  errors.ErrorCode
	}{
		{"neither", RewriteInput{}, errors.ErrInvalidRequest},
		{"both", RewriteInput{RunID: "01X", Mapping: pair}, errors.ErrInvalidRequest},
		{"unknown run", RewriteInput{RunID: "01MISSING"}, errors.ErrNotFound},
		{"identity pair", RewriteInput{Mapping: rewrite.Mapping{{Old: "a", New: "a"}}}, errors.ErrInvalidMapping},
		{"uninvertible", RewriteInput{Revert: true, Mapping: rewrite.Mapping{
			{Old: "https://a.test/1.png", New: "https://a.test/n.webp"},
			{Old: "https://a.test/2.png", New: "https://a.test/n.webp"},
		}}, errors.ErrInvalidMapping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rewrite(context.Background(), database, store, cfg, tt.input)
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
	require.Equal(t, 0, store.listCalls, "validation happens before any document is read")

	runs, err := db.ListRuns(database, db.RunFilter{})
	require.NoError(t, err)
	require.Empty(t, runs, "rejected requests leave no ledger entry")
}

func TestMappingFromRun_NoSuccessfulUploads(t *testing.T) {
	dir, lib, store := siteFixture(t)
	lib.failures["hero.webp"] = errors.NewUploadFailed("hero.webp", 500, "500")
	lib.failures["sunset.webp"] = errors.NewUploadFailed("sunset.webp", 500, "500")
	database := openTestDB(t)

	out, err := Run(context.Background(), database, lib, store, testConfig(dir), RunInput{})
	require.NoError(t, err)

	_, err = MappingFromRun(database, out.Run.ID, false)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRewrite_Locked(t *testing.T) {
	database := openTestDB(t)
	stateDir := t.TempDir()
	unlock, err := db.Lock(stateDir)
	require.NoError(t, err)
	defer unlock()

	_, err = Rewrite(context.Background(), database, newFakeStore(), testConfig(""), RewriteInput{
		Mapping:  rewrite.Mapping{{Old: "https://a.test/x.png", New: "https://a.test/x.webp"}},
		StateDir: stateDir,
	})
	require.True(t, errors.Is(err, errors.ErrRunLocked))
}
