package asset

import (
	"path"
	"path/filepath"
)

// LocalAsset is a replacement image discovered on the local filesystem.
type LocalAsset struct {
	// Stem is the normalized filename without extension
	Stem string `json:"stem"`

	// Path is the filesystem path used to open the file for upload
	Path string `json:"path"`

	// Name is the base filename as listed in the folder
	Name string `json:"name"`

	// ContentHash is the hex xxh3 digest of the file bytes (empty if not hashed)
	ContentHash string `json:"content_hash,omitempty"`
}

// NewLocalAsset builds a LocalAsset from a filesystem path.
func NewLocalAsset(p string) LocalAsset {
	name := filepath.Base(p)
	return LocalAsset{
		Stem: NormalizeStem(Stem(name)),
		Path: p,
		Name: name,
	}
}

// RemoteAsset is one record of the remote media library.
type RemoteAsset struct {
	// ID is the media record identifier
	ID int64 `json:"id"`

	// Filename is the original name as stored remotely (taken from the source URL)
	Filename string `json:"filename"`

	// URL is the canonical address of the full-size file
	URL string `json:"url"`

	// NormalizedStem is Normalize(Filename)
	NormalizedStem string `json:"normalized_stem"`

	// SizeURLs holds the addresses of generated size variants, ordered by size name
	SizeURLs []string `json:"size_urls,omitempty"`

	// MimeType as reported by the media library
	MimeType string `json:"mime_type,omitempty"`
}

// NewRemoteAsset builds a RemoteAsset, deriving Filename from url when filename is empty.
func NewRemoteAsset(id int64, filename, url string, sizeURLs []string) RemoteAsset {
	if filename == "" {
		filename = FilenameFromURL(url)
	}
	return RemoteAsset{
		ID:             id,
		Filename:       filename,
		URL:            url,
		NormalizedStem: Normalize(filename),
		SizeURLs:       sizeURLs,
	}
}

// URLs returns every address content may use to reference this asset:
// the source URL first, then size variants, without duplicates.
func (r RemoteAsset) URLs() []string {
	seen := make(map[string]bool, len(r.SizeURLs)+1)
	urls := make([]string, 0, len(r.SizeURLs)+1)
	for _, u := range append([]string{r.URL}, r.SizeURLs...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// FilenameFromURL returns the last path segment of a URL, ignoring query and fragment.
func FilenameFromURL(u string) string {
	for i := 0; i < len(u); i++ {
		if u[i] == '?' || u[i] == '#' {
			u = u[:i]
			break
		}
	}
	if u == "" {
		return ""
	}
	return path.Base(u)
}
