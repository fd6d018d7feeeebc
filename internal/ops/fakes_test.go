package ops

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

const (
	testSite    = "https://example.com"
	uploadsBase = testSite + "/wp-content/uploads/2024/01/"
	newBase     = testSite + "/wp-content/uploads/2024/06/"
)

// fakeLibrary is an in-memory media library.
type fakeLibrary struct {
	mu       sync.Mutex
	media    []asset.RemoteAsset
	listErr  error
	failures map[string]error // by local file name
	uploaded []string         // local file names, in upload order
	nextID   int64
	onUpload func(name string)
}

func newFakeLibrary(media ...asset.RemoteAsset) *fakeLibrary {
	return &fakeLibrary{media: media, failures: map[string]error{}, nextID: 1000}
}

func (l *fakeLibrary) ListMedia(ctx context.Context) ([]asset.RemoteAsset, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	return append([]asset.RemoteAsset(nil), l.media...), nil
}

func (l *fakeLibrary) UploadMedia(ctx context.Context, local asset.LocalAsset) (*asset.RemoteAsset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onUpload != nil {
		l.onUpload(local.Name)
	}
	if err := l.failures[local.Name]; err != nil {
		return nil, err
	}
	l.uploaded = append(l.uploaded, local.Name)
	l.nextID++
	r := asset.NewRemoteAsset(l.nextID, "", newBase+local.Name, nil)
	return &r, nil
}

// fakeStore is an in-memory post and page store.
type fakeStore struct {
	mu        sync.Mutex
	docs      map[string][]rewrite.Document // by kind
	saved     map[string]string             // kind/id -> text
	saveOrder []string
	saveErrs  map[string]error // by kind/id
	listCalls int
	onSave    func(key string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string][]rewrite.Document{},
		saved:    map[string]string{},
		saveErrs: map[string]error{},
	}
}

func (s *fakeStore) add(kind, id, title, text string) {
	s.docs[kind] = append(s.docs[kind], rewrite.Document{ID: id, Kind: kind, Title: title, RawText: text})
}

func (s *fakeStore) ListDocuments(ctx context.Context, kind string) ([]rewrite.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	docs := make([]rewrite.Document, len(s.docs[kind]))
	copy(docs, s.docs[kind])
	return docs, nil
}

func (s *fakeStore) SaveDocument(ctx context.Context, kind, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := kind + "/" + id
	if s.onSave != nil {
		s.onSave(key)
	}
	if err := s.saveErrs[key]; err != nil {
		return err
	}
	s.saved[key] = text
	s.saveOrder = append(s.saveOrder, key)
	for i, d := range s.docs[kind] {
		if d.ID == id {
			s.docs[kind][i].RawText = text
		}
	}
	return nil
}

func (s *fakeStore) text(kind, id string) string {
	for _, d := range s.docs[kind] {
		if d.ID == id {
			return d.RawText
		}
	}
	return ""
}

func remote(id int64, file string, sizes ...string) asset.RemoteAsset {
	sizeURLs := make([]string, len(sizes))
	for i, s := range sizes {
		sizeURLs[i] = uploadsBase + s
	}
	return asset.NewRemoteAsset(id, "", uploadsBase+file, sizeURLs)
}

func testConfig(folder string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.WordPressURL = testSite
	cfg.Username = "editor"
	cfg.AppPassword = "secret"
	cfg.WebPFolder = folder
	cfg.RewriteWorkers = 2
	return cfg
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("bytes of "+name), 0644))
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}
