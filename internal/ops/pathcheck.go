package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/wpswap/internal/errors"
)

// reportExtensions lists the accepted file extensions per report format.
var reportExtensions = map[string][]string{
	FormatMarkdown: {".md", ".markdown"},
	FormatHTML:     {".html", ".htm"},
}

// ValidateReportPath checks a report destination before it is written:
// 1. No directory traversal (..)
// 2. Extension matching the format
// 3. Unless allowAnyDir, the file must be directly in reportsDir (no subdirectories)
// 4. Neither the parent directory nor the file may be a symlink
//
// Requiring the file to sit directly in the reports directory leaves no
// intermediate directory that could be swapped for a symlink between
// validation and open; O_NOFOLLOW covers the final component.
func ValidateReportPath(path, format, reportsDir string, allowAnyDir bool) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	exts, ok := reportExtensions[format]
	if !ok {
		return errors.NewInvalidRequest(fmt.Sprintf("unknown report format %q", format))
	}
	if !hasAnySuffix(strings.ToLower(filepath.Ext(cleaned)), exts) {
		return errors.NewInvalidRequest(fmt.Sprintf("%s report path must end in %s", format, strings.Join(exts, " or ")))
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	parentDir := filepath.Dir(absPath)

	if !allowAnyDir {
		allowed, err := resolveDir(reportsDir)
		if err != nil {
			return err
		}
		if filepath.Clean(parentDir) != allowed {
			return errors.NewInvalidRequest(
				fmt.Sprintf("report must be written directly in %s (no subdirectories)", allowed))
		}
	}

	if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// resolveDir returns dir as an absolute path, following a symlink if dir is one.
func resolveDir(dir string) (string, error) {
	if dir == "" {
		return "", errors.NewInvalidRequest("reports directory is not configured")
	}
	abs, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid reports directory: %v", err))
	}
	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("cannot resolve reports directory: %v", err))
		}
		abs = resolved
	}
	return abs, nil
}

func hasAnySuffix(ext string, exts []string) bool {
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
