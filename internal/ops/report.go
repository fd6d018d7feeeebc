package ops

import (
	"bytes"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/errors"
)

// Report formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ReportInput contains parameters for the Report operation.
type ReportInput struct {
	ID     string // run ID; empty selects the latest run for Site
	Site   string
	Format string // markdown (default) or html

	// Write saves the report to Path, or to ReportsDir/<run id>.<ext> when Path is empty.
	Write      bool
	Path       string
	ReportsDir string
	// AllowAnyDir lifts the requirement that Path be directly in ReportsDir.
	AllowAnyDir bool
}

// ReportOutput contains the rendered report.
type ReportOutput struct {
	RunID   string `json:"run_id"`
	Format  string `json:"format"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content"`
}

// Report renders a run as Markdown, or as HTML through goldmark, and
// optionally writes it to disk.
func Report(database *sql.DB, input ReportInput) (*ReportOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatMarkdown
	}
	if format != FormatMarkdown && format != FormatHTML {
		return nil, errors.NewInvalidRequest("format must be one of: markdown, html")
	}

	shown, err := ShowRun(database, ShowRunInput{ID: input.ID, Site: input.Site})
	if err != nil {
		return nil, err
	}

	content := RenderMarkdown(shown)
	if format == FormatHTML {
		content, err = renderHTML("wpswap run "+shown.Run.ID, content)
		if err != nil {
			return nil, err
		}
	}
	out := &ReportOutput{RunID: shown.Run.ID, Format: format, Content: content}

	if !input.Write && input.Path == "" {
		return out, nil
	}
	path := input.Path
	if path == "" {
		path = filepath.Join(input.ReportsDir, shown.Run.ID+reportExtensions[format][0])
	}
	if err := ValidateReportPath(path, format, input.ReportsDir, input.AllowAnyDir); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, []byte(content)); err != nil {
		return nil, err
	}
	out.Path = path
	return out, nil
}

// RenderMarkdown formats a run, its uploads and its document rewrites.
func RenderMarkdown(s *ShowRunOutput) string {
	var b strings.Builder
	r := s.Run

	fmt.Fprintf(&b, "# wpswap %s %s\n\n", r.Kind, r.ID)
	fmt.Fprintf(&b, "- Site: %s\n", r.Site)
	if r.Folder != "" {
		fmt.Fprintf(&b, "- Folder: `%s`\n", r.Folder)
	}
	if r.SourceRunID != "" {
		fmt.Fprintf(&b, "- Replayed from: %s\n", r.SourceRunID)
	}
	fmt.Fprintf(&b, "- Status: **%s**\n", r.Status)
	fmt.Fprintf(&b, "- Started: %s\n", formatTime(r.StartedAt))
	if r.FinishedAt != nil {
		fmt.Fprintf(&b, "- Finished: %s\n", formatTime(*r.FinishedAt))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", r.Error)
	}

	b.WriteString("\n## Summary\n\n| Metric | Count |\n|---|---:|\n")
	for _, row := range []struct {
		name string
		n    int
	}{
		{"Matched files", r.Matched},
		{"Uploaded", r.Uploaded},
		{"Reused uploads", r.Reused},
		{"Upload failures", r.UploadFailures},
		{"Documents scanned", r.DocumentsScanned},
		{"Documents changed", r.DocumentsChanged},
		{"URL replacements", r.Replacements},
	} {
		fmt.Fprintf(&b, "| %s | %d |\n", row.name, row.n)
	}

	if len(s.Uploads) > 0 {
		b.WriteString("\n## Uploads\n\n| Local file | Old media | New URL | Status |\n|---|---|---|---|\n")
		for _, u := range s.Uploads {
			newURL := u.NewURL
			if u.Status == db.UploadFailed {
				newURL = u.Error
			}
			fmt.Fprintf(&b, "| %s | #%d %s | %s | %s |\n",
				cell(filepath.Base(u.LocalPath)), u.OldMediaID, cell(u.OldURL), cell(newURL), u.Status)
		}
	}

	if len(s.Rewrites) > 0 {
		b.WriteString("\n## Documents\n\n| Document | Title | Replacements | Status |\n|---|---|---:|---|\n")
		for _, w := range s.Rewrites {
			status := w.Status
			if w.Error != "" {
				status += ": " + w.Error
			}
			fmt.Fprintf(&b, "| %s/%s | %s | %d | %s |\n",
				w.Kind, w.DocumentID, cell(w.Title), w.Replacements, cell(status))
		}
	}
	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

func renderHTML(title, md string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", errors.NewInternal(fmt.Errorf("render report: %w", err))
	}
	return "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>" +
		html.EscapeString(title) + "</title>\n</head>\n<body>\n" +
		body.String() + "</body>\n</html>\n", nil
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

// cell makes s safe inside a Markdown table cell.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	return cellEscaper.Replace(s)
}

// formatTime formats a Unix timestamp as RFC 3339 UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// writeFileAtomic writes data to a temp file beside path, then renames it into
// place so an existing report survives a failed write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create report directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := createReportFile(tempPath)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create report file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close report file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("report path is a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("report destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize report: %w", err))
	}

	success = true
	return nil
}
