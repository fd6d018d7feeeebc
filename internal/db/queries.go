package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/wpswap/internal/errors"
)

const runColumns = `
	id, kind, site, folder, source_run_id, status,
	matched, uploaded, reused, upload_failures,
	documents_scanned, documents_changed, replacements,
	error, started_at, finished_at
`

// InsertRun stores a new run. StartedAt defaults to now.
func InsertRun(db *sql.DB, r *Run) error {
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().Unix()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}

	query := `
		INSERT INTO runs (
			id, kind, site, folder, source_run_id, status, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		r.ID, r.Kind, r.Site, toNullString(r.Folder), toNullString(r.SourceRunID),
		r.Status, r.StartedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FinishRun writes the final status and counters of a run.
// Sets finished_at to the current timestamp.
func FinishRun(db *sql.DB, r *Run) error {
	now := time.Now().Unix()

	query := `
		UPDATE runs
		SET status = ?, matched = ?, uploaded = ?, reused = ?, upload_failures = ?,
			documents_scanned = ?, documents_changed = ?, replacements = ?,
			error = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := db.Exec(query,
		r.Status, r.Matched, r.Uploaded, r.Reused, r.UploadFailures,
		r.DocumentsScanned, r.DocumentsChanged, r.Replacements,
		toNullString(r.Error), now,
		r.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("run", r.ID)
	}

	r.FinishedAt = &now
	return nil
}

// GetRun retrieves a run by its ULID.
func GetRun(db *sql.DB, id string) (*Run, error) {
	row := db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// LatestRun returns the most recently started run of the given kind for a site.
func LatestRun(db *sql.DB, site, kind string) (*Run, error) {
	query := "SELECT " + runColumns + ` FROM runs
		WHERE site = ? AND kind = ?
		ORDER BY started_at DESC, id DESC LIMIT 1`
	r, err := scanRun(db.QueryRow(query, site, kind))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", "latest "+kind+" for "+site)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func ListRuns(db *sql.DB, f RunFilter) ([]Run, error) {
	where, args := runWhere(f)
	query := "SELECT " + runColumns + " FROM runs" + where + " ORDER BY started_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}

// CountRuns returns the number of runs matching f (ignoring Limit and Offset).
func CountRuns(db *sql.DB, f RunFilter) (int, error) {
	where, args := runWhere(f)
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM runs"+where, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func runWhere(f RunFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Site != "" {
		clauses = append(clauses, "site = ?")
		args = append(args, f.Site)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// InsertUpload stores the outcome for one matched file and sets u.ID.
func InsertUpload(db *sql.DB, u *Upload) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().Unix()
	}
	oldURLs, err := json.Marshal(nonNil(u.OldURLs))
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO uploads (
			run_id, site, local_path, content_hash, old_media_id, old_url, old_urls_json,
			new_media_id, new_url, status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.Exec(query,
		u.RunID, u.Site, u.LocalPath, u.ContentHash, u.OldMediaID, u.OldURL, string(oldURLs),
		toNullInt64(u.NewMediaID), toNullString(u.NewURL), u.Status, toNullString(u.Error), u.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return errors.NewInternal(err)
	}
	u.ID = id
	return nil
}

// FindUpload returns the most recent successful upload of the same content
// replacing the same remote record on site. Used to avoid duplicate uploads
// when a run is repeated.
func FindUpload(db *sql.DB, site string, oldMediaID int64, contentHash string) (*Upload, error) {
	query := "SELECT " + uploadColumns + ` FROM uploads
		WHERE site = ? AND old_media_id = ? AND content_hash = ?
			AND status != 'failed' AND new_url IS NOT NULL
		ORDER BY id DESC LIMIT 1`
	u, err := scanUpload(db.QueryRow(query, site, oldMediaID, contentHash))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("upload", contentHash)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

const uploadColumns = `
	id, run_id, site, local_path, content_hash, old_media_id, old_url, old_urls_json,
	new_media_id, new_url, status, error, created_at
`

// ListUploads returns the uploads of a run in insertion order.
func ListUploads(db *sql.DB, runID string) ([]Upload, error) {
	rows, err := db.Query("SELECT "+uploadColumns+" FROM uploads WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	uploads := []Upload{}
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		uploads = append(uploads, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return uploads, nil
}

// InsertRewrite stores the outcome of saving one document and sets r.ID.
func InsertRewrite(db *sql.DB, r *RewriteRecord) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO rewrites (
			run_id, kind, document_id, title, replacements, status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.Exec(query,
		r.RunID, r.Kind, r.DocumentID, toNullString(r.Title), r.Replacements,
		r.Status, toNullString(r.Error), r.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return errors.NewInternal(err)
	}
	r.ID = id
	return nil
}

// ListRewrites returns the document rewrites of a run in insertion order.
func ListRewrites(db *sql.DB, runID string) ([]RewriteRecord, error) {
	query := `
		SELECT id, run_id, kind, document_id, title, replacements, status, error, created_at
		FROM rewrites WHERE run_id = ? ORDER BY id
	`
	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	records := []RewriteRecord{}
	for rows.Next() {
		var (
			r       RewriteRecord
			title   sql.NullString
			errText sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Kind, &r.DocumentID, &title, &r.Replacements,
			&r.Status, &errText, &r.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Title = title.String
		r.Error = errText.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return records, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a Run struct.
func scanRun(row scanner) (*Run, error) {
	var (
		r           Run
		folder      sql.NullString
		sourceRunID sql.NullString
		errText     sql.NullString
		finishedAt  sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.Kind, &r.Site, &folder, &sourceRunID, &r.Status,
		&r.Matched, &r.Uploaded, &r.Reused, &r.UploadFailures,
		&r.DocumentsScanned, &r.DocumentsChanged, &r.Replacements,
		&errText, &r.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Folder = folder.String
	r.SourceRunID = sourceRunID.String
	r.Error = errText.String
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Int64
	}
	return &r, nil
}

// scanUpload scans a single row into an Upload struct.
func scanUpload(row scanner) (*Upload, error) {
	var (
		u          Upload
		oldURLs    string
		newMediaID sql.NullInt64
		newURL     sql.NullString
		errText    sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.RunID, &u.Site, &u.LocalPath, &u.ContentHash, &u.OldMediaID, &u.OldURL, &oldURLs,
		&newMediaID, &newURL, &u.Status, &errText, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.NewMediaID = newMediaID.Int64
	u.NewURL = newURL.String
	u.Error = errText.String
	if err := json.Unmarshal([]byte(oldURLs), &u.OldURLs); err != nil {
		return nil, err
	}
	return &u, nil
}

// toNullString maps the empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toNullInt64 maps zero to NULL.
func toNullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
