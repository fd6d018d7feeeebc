package db

import (
	"database/sql"
	"testing"

	"github.com/hpungsan/wpswap/internal/errors"
)

const testSite = "https://example.com"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertTestRun(t *testing.T, db *sql.DB, id string, startedAt int64) *Run {
	t.Helper()
	r := &Run{ID: id, Kind: KindRun, Site: testSite, Folder: "/img", StartedAt: startedAt}
	if err := InsertRun(db, r); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	return r
}

func TestInsertAndGetRun(t *testing.T) {
	db := openTestDB(t)
	insertTestRun(t, db, "01RUN1", 1000)

	got, err := GetRun(db, "01RUN1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunRunning {
		t.Errorf("Status = %q, want %q", got.Status, RunRunning)
	}
	if got.Folder != "/img" || got.Site != testSite || got.Kind != KindRun {
		t.Errorf("GetRun = %+v", got)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", *got.FinishedAt)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetRun(db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetRun error = %v, want NOT_FOUND", err)
	}
}

func TestFinishRun(t *testing.T) {
	db := openTestDB(t)
	r := insertTestRun(t, db, "01RUN1", 1000)

	r.Status = RunCompleted
	r.Matched = 3
	r.Uploaded = 2
	r.Reused = 1
	r.DocumentsScanned = 10
	r.DocumentsChanged = 4
	r.Replacements = 9
	if err := FinishRun(db, r); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	if r.FinishedAt == nil {
		t.Fatal("FinishedAt not set on struct")
	}

	got, err := GetRun(db, "01RUN1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunCompleted || got.Matched != 3 || got.Uploaded != 2 || got.Reused != 1 {
		t.Errorf("counters = %+v", got)
	}
	if got.DocumentsChanged != 4 || got.Replacements != 9 || got.DocumentsScanned != 10 {
		t.Errorf("document counters = %+v", got)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt = nil after FinishRun")
	}
}

func TestFinishRun_NotFound(t *testing.T) {
	db := openTestDB(t)

	err := FinishRun(db, &Run{ID: "missing", Status: RunFailed})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("FinishRun error = %v, want NOT_FOUND", err)
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)
	insertTestRun(t, db, "01A", 1000)
	insertTestRun(t, db, "01B", 3000)
	insertTestRun(t, db, "01C", 2000)
	other := &Run{ID: "01D", Kind: KindRewrite, Site: "https://other.example", StartedAt: 4000}
	if err := InsertRun(db, other); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	t.Run("newest first", func(t *testing.T) {
		runs, err := ListRuns(db, RunFilter{})
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		want := []string{"01D", "01B", "01C", "01A"}
		if len(runs) != len(want) {
			t.Fatalf("len = %d, want %d", len(runs), len(want))
		}
		for i, id := range want {
			if runs[i].ID != id {
				t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, id)
			}
		}
	})

	t.Run("site filter with paging", func(t *testing.T) {
		runs, err := ListRuns(db, RunFilter{Site: testSite, Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != "01C" {
			t.Errorf("runs = %+v, want [01C]", runs)
		}

		total, err := CountRuns(db, RunFilter{Site: testSite, Limit: 1})
		if err != nil {
			t.Fatalf("CountRuns failed: %v", err)
		}
		if total != 3 {
			t.Errorf("CountRuns = %d, want 3", total)
		}
	})

	t.Run("kind filter", func(t *testing.T) {
		runs, err := ListRuns(db, RunFilter{Kind: KindRewrite})
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != "01D" {
			t.Errorf("runs = %+v, want [01D]", runs)
		}
	})

	t.Run("empty result is non-nil", func(t *testing.T) {
		runs, err := ListRuns(db, RunFilter{Site: "https://nowhere.example"})
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if runs == nil || len(runs) != 0 {
			t.Errorf("runs = %v, want empty slice", runs)
		}
	})
}

func TestLatestRun(t *testing.T) {
	db := openTestDB(t)
	insertTestRun(t, db, "01A", 1000)
	insertTestRun(t, db, "01B", 2000)

	got, err := LatestRun(db, testSite, KindRun)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if got.ID != "01B" {
		t.Errorf("LatestRun = %s, want 01B", got.ID)
	}

	_, err = LatestRun(db, testSite, KindRewrite)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("LatestRun error = %v, want NOT_FOUND", err)
	}
}

func TestUploads(t *testing.T) {
	db := openTestDB(t)
	insertTestRun(t, db, "01A", 1000)
	insertTestRun(t, db, "01B", 2000)

	first := &Upload{
		RunID:       "01A",
		Site:        testSite,
		LocalPath:   "/img/sunset.webp",
		ContentHash: "abc",
		OldMediaID:  7,
		OldURL:      "https://example.com/sunset.png",
		OldURLs:     []string{"https://example.com/sunset.png", "https://example.com/sunset-150x150.png"},
		NewMediaID:  70,
		NewURL:      "https://example.com/sunset.webp",
		Status:      UploadUploaded,
	}
	failed := &Upload{
		RunID:       "01A",
		Site:        testSite,
		LocalPath:   "/img/logo.webp",
		ContentHash: "def",
		OldMediaID:  8,
		OldURL:      "https://example.com/logo.png",
		Status:      UploadFailed,
		Error:       "UPLOAD_FAILED: upload /img/logo.webp: 413",
	}
	for _, u := range []*Upload{first, failed} {
		if err := InsertUpload(db, u); err != nil {
			t.Fatalf("InsertUpload failed: %v", err)
		}
		if u.ID == 0 {
			t.Error("InsertUpload did not set ID")
		}
	}

	t.Run("list in order", func(t *testing.T) {
		uploads, err := ListUploads(db, "01A")
		if err != nil {
			t.Fatalf("ListUploads failed: %v", err)
		}
		if len(uploads) != 2 {
			t.Fatalf("len = %d, want 2", len(uploads))
		}
		if uploads[0].LocalPath != "/img/sunset.webp" || len(uploads[0].OldURLs) != 2 {
			t.Errorf("uploads[0] = %+v", uploads[0])
		}
		if uploads[1].NewURL != "" || uploads[1].NewMediaID != 0 || uploads[1].Error == "" {
			t.Errorf("uploads[1] = %+v", uploads[1])
		}
		if uploads[1].OldURLs == nil {
			t.Error("OldURLs should decode to an empty slice, not nil")
		}
	})

	t.Run("find reusable upload", func(t *testing.T) {
		got, err := FindUpload(db, testSite, 7, "abc")
		if err != nil {
			t.Fatalf("FindUpload failed: %v", err)
		}
		if got.NewURL != "https://example.com/sunset.webp" || got.NewMediaID != 70 {
			t.Errorf("FindUpload = %+v", got)
		}
	})

	t.Run("failed uploads are not reusable", func(t *testing.T) {
		_, err := FindUpload(db, testSite, 8, "def")
		if !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("FindUpload error = %v, want NOT_FOUND", err)
		}
	})

	t.Run("different content is not reusable", func(t *testing.T) {
		_, err := FindUpload(db, testSite, 7, "changed")
		if !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("FindUpload error = %v, want NOT_FOUND", err)
		}
	})

	t.Run("latest reuse wins", func(t *testing.T) {
		reused := *first
		reused.ID = 0
		reused.RunID = "01B"
		reused.Status = UploadReused
		if err := InsertUpload(db, &reused); err != nil {
			t.Fatalf("InsertUpload failed: %v", err)
		}
		got, err := FindUpload(db, testSite, 7, "abc")
		if err != nil {
			t.Fatalf("FindUpload failed: %v", err)
		}
		if got.RunID != "01B" {
			t.Errorf("FindUpload run = %s, want 01B", got.RunID)
		}
	})
}

func TestRewrites(t *testing.T) {
	db := openTestDB(t)
	insertTestRun(t, db, "01A", 1000)

	records := []*RewriteRecord{
		{RunID: "01A", Kind: "posts", DocumentID: "12", Title: "Hello", Replacements: 3, Status: RewriteSaved},
		{RunID: "01A", Kind: "pages", DocumentID: "4", Replacements: 1, Status: RewriteFailed, Error: "REMOTE: 500"},
	}
	for _, r := range records {
		if err := InsertRewrite(db, r); err != nil {
			t.Fatalf("InsertRewrite failed: %v", err)
		}
	}

	got, err := ListRewrites(db, "01A")
	if err != nil {
		t.Fatalf("ListRewrites failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Title != "Hello" || got[0].Replacements != 3 || got[0].Status != RewriteSaved {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Title != "" || got[1].Error != "REMOTE: 500" {
		t.Errorf("got[1] = %+v", got[1])
	}

	empty, err := ListRewrites(db, "none")
	if err != nil {
		t.Fatalf("ListRewrites failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListRewrites(none) = %v, want empty slice", empty)
	}
}
