package db

// Run kinds.
const (
	KindRun     = "run"     // match, upload and rewrite
	KindRewrite = "rewrite" // rewrite only, from a stored or explicit mapping
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunCanceled  = "canceled"
	RunFailed    = "failed"
)

// Upload statuses.
const (
	UploadUploaded = "uploaded"
	UploadReused   = "reused"
	UploadFailed   = "failed"
)

// Rewrite statuses.
const (
	RewriteSaved  = "saved"
	RewriteFailed = "failed"
)

// Run is one invocation of the pipeline against a site.
type Run struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Site             string `json:"site"`
	Folder           string `json:"folder,omitempty"`
	SourceRunID      string `json:"source_run_id,omitempty"`
	Status           string `json:"status"`
	Matched          int    `json:"matched"`
	Uploaded         int    `json:"uploaded"`
	Reused           int    `json:"reused"`
	UploadFailures   int    `json:"upload_failures"`
	DocumentsScanned int    `json:"documents_scanned"`
	DocumentsChanged int    `json:"documents_changed"`
	Replacements     int    `json:"replacements"`
	Error            string `json:"error,omitempty"`
	StartedAt        int64  `json:"started_at"`
	FinishedAt       *int64 `json:"finished_at,omitempty"`
}

// Upload records what happened to one matched local file.
type Upload struct {
	ID          int64    `json:"id"`
	RunID       string   `json:"run_id"`
	Site        string   `json:"site"`
	LocalPath   string   `json:"local_path"`
	ContentHash string   `json:"content_hash"`
	OldMediaID  int64    `json:"old_media_id"`
	OldURL      string   `json:"old_url"`
	OldURLs     []string `json:"old_urls"`
	NewMediaID  int64    `json:"new_media_id,omitempty"`
	NewURL      string   `json:"new_url,omitempty"`
	Status      string   `json:"status"`
	Error       string   `json:"error,omitempty"`
	CreatedAt   int64    `json:"created_at"`
}

// RewriteRecord records one document the run tried to save.
type RewriteRecord struct {
	ID           int64  `json:"id"`
	RunID        string `json:"run_id"`
	Kind         string `json:"kind"`
	DocumentID   string `json:"document_id"`
	Title        string `json:"title,omitempty"`
	Replacements int    `json:"replacements"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// RunFilter narrows ListRuns and CountRuns.
type RunFilter struct {
	Site   string // exact match on the normalized site URL
	Kind   string
	Limit  int
	Offset int
}
