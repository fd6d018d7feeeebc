// Package localfs lists replacement files from a local folder.
package localfs

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/errors"
)

// List returns the regular files directly inside folder whose extension is
// in exts, sorted by filename. Each asset carries an xxh3 content hash.
// Subdirectories and symlinks are skipped.
func List(folder string, exts []string) ([]asset.LocalAsset, error) {
	info, err := os.Stat(folder)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("folder does not exist: %s", folder))
		}
		return nil, errors.NewInternal(err)
	}
	if !info.IsDir() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("not a directory: %s", folder))
	}

	// ReadDir sorts by filename, which fixes the input order matching relies on
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	assets := make([]asset.LocalAsset, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !asset.HasExtension(e.Name(), exts) {
			continue
		}
		a := asset.NewLocalAsset(filepath.Join(folder, e.Name()))
		a.ContentHash, err = Hash(a.Path)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("hash %s: %w", a.Path, err))
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// Hash returns the hex xxh3-64 digest of the file at path.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}
