package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	wperrors "github.com/hpungsan/wpswap/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvURL, EnvUsername, EnvAppPassword, EnvFolder} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("Load() = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadFile_IgnoresEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAppPassword, "from-env")
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"username": "editor"}`)

	cfg, err := LoadFile(tmpDir)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Username != "editor" {
		t.Errorf("Username = %q, want editor", cfg.Username)
	}
	if cfg.AppPassword != "" {
		t.Errorf("AppPassword = %q, want empty (env not applied)", cfg.AppPassword)
	}
	if cfg.PerPage != DefaultConfig().PerPage {
		t.Errorf("PerPage = %d, want default", cfg.PerPage)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{
		"wordpress_url": "https://example.com",
		"username": "editor",
		"app_password": "abcd efgh",
		"webp_folder": "/tmp/webp",
		"remote_extensions": ["png", "jpg"],
		"per_page": 50
	}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WordPressURL != "https://example.com" || cfg.Username != "editor" {
		t.Errorf("connection fields = %+v", cfg)
	}
	if cfg.PerPage != 50 {
		t.Errorf("PerPage = %d, want 50", cfg.PerPage)
	}
	if !reflect.DeepEqual(cfg.RemoteExtensions, []string{"png", "jpg"}) {
		t.Errorf("RemoteExtensions = %v", cfg.RemoteExtensions)
	}
	if !reflect.DeepEqual(cfg.LocalExtensions, []string{"webp"}) {
		t.Errorf("LocalExtensions = %v, want default", cfg.LocalExtensions)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"wordpress_url": "https://file.example", "username": "file-user"}`)

	t.Setenv(EnvURL, "https://env.example")
	t.Setenv(EnvAppPassword, "secret")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WordPressURL != "https://env.example" {
		t.Errorf("WordPressURL = %q, want env value", cfg.WordPressURL)
	}
	if cfg.Username != "file-user" {
		t.Errorf("Username = %q, want file value", cfg.Username)
	}
	if cfg.AppPassword != "secret" {
		t.Errorf("AppPassword = %q, want env value", cfg.AppPassword)
	}
}

func TestLoadWithRepo_RepoWins(t *testing.T) {
	clearEnv(t)
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, globalDir, `{"username": "global", "webp_folder": "/global", "disabled_tools": ["wpswap_runs"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".wpswap"), `{"webp_folder": "/repo", "disabled_tools": ["wpswap_report"]}`)

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.Username != "global" {
		t.Errorf("Username = %q, want global", cfg.Username)
	}
	if cfg.WebPFolder != "/repo" {
		t.Errorf("WebPFolder = %q, want /repo", cfg.WebPFolder)
	}
	if !reflect.DeepEqual(cfg.DisabledTools, []string{"wpswap_runs", "wpswap_report"}) {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
	if cfg.PerPage != MaxPerPage {
		t.Errorf("PerPage = %d, want default", cfg.PerPage)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("LoadWithRepo() = %+v, want defaults", cfg)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Errorf("FindRepoConfig() = %q, want empty", got)
	}
	if got := FindRepoConfig(""); got != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty", got)
	}
}

func TestMerge_ListsReplace(t *testing.T) {
	base := &Config{RemoteExtensions: []string{"png"}, ContentTypes: []string{"posts", "pages"}}
	overlay := &Config{RemoteExtensions: []string{" jpg ", "jpg"}}

	got := Merge(base, overlay)
	if !reflect.DeepEqual(got.RemoteExtensions, []string{"jpg"}) {
		t.Errorf("RemoteExtensions = %v, want [jpg]", got.RemoteExtensions)
	}
	if !reflect.DeepEqual(got.ContentTypes, []string{"posts", "pages"}) {
		t.Errorf("ContentTypes = %v, want base", got.ContentTypes)
	}
}

func TestMerge_NegativeRetriesKept(t *testing.T) {
	got := Merge(DefaultConfig(), &Config{MaxRetries: -1})
	if got.MaxRetries != -1 {
		t.Errorf("MaxRetries = %d, want -1", got.MaxRetries)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	tmpDir := filepath.Join(t.TempDir(), "state")
	cfg := DefaultConfig()
	cfg.WordPressURL = "https://example.com"
	cfg.WebPFolder = "/img"

	if err := Save(tmpDir, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "config.json"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("Load() = %+v, want %+v", loaded, cfg)
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WordPressURL = " https://example.com/ "
	cfg.Username = "editor"
	cfg.AppPassword = "abcd efgh ijkl mnop"
	cfg.WebPFolder = "/img"
	cfg.PerPage = 500
	cfg.RewriteWorkers = 0

	got, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.WordPressURL != "https://example.com" {
		t.Errorf("WordPressURL = %q", got.WordPressURL)
	}
	if got.AppPassword != "abcdefghijklmnop" {
		t.Errorf("AppPassword = %q, want spaces stripped", got.AppPassword)
	}
	if got.PerPage != MaxPerPage {
		t.Errorf("PerPage = %d, want %d", got.PerPage, MaxPerPage)
	}
	if got.RewriteWorkers != 1 {
		t.Errorf("RewriteWorkers = %d, want 1", got.RewriteWorkers)
	}
	if cfg.AppPassword != "abcd efgh ijkl mnop" {
		t.Errorf("Validate() mutated receiver")
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WordPressURL = "example.com"
	cfg.ContentTypes = []string{"posts", "media"}

	_, err := cfg.Validate()
	if !wperrors.Is(err, wperrors.ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want INVALID_CONFIG", err)
	}
	e, _ := wperrors.As(err)
	problems := e.Details["problems"].([]string)
	if len(problems) != 5 {
		t.Errorf("problems = %v, want 5 entries", problems)
	}
}

func TestValidateSite_FolderOptional(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WordPressURL = "https://example.com/"
	cfg.Username = "editor"
	cfg.AppPassword = "abcd efgh"

	out, err := cfg.ValidateSite()
	if err != nil {
		t.Fatalf("ValidateSite() error = %v", err)
	}
	if out.WordPressURL != "https://example.com" {
		t.Errorf("WordPressURL = %q", out.WordPressURL)
	}

	if _, err := cfg.Validate(); !wperrors.Is(err, wperrors.ErrInvalidConfig) {
		t.Errorf("Validate() without folder error = %v, want INVALID_CONFIG", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{AppPassword: "secret"}
	if got := cfg.Redacted().AppPassword; got != "***" {
		t.Errorf("Redacted().AppPassword = %q", got)
	}
	if cfg.AppPassword != "secret" {
		t.Errorf("Redacted() mutated receiver")
	}
	if got := (&Config{}).Redacted().AppPassword; got != "" {
		t.Errorf("Redacted() of empty password = %q", got)
	}
}

func TestTimeouts(t *testing.T) {
	cfg := &Config{RequestTimeoutSeconds: 5}
	if cfg.RequestTimeout().Seconds() != 5 {
		t.Errorf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
	if cfg.UploadTimeout().Seconds() != 60 {
		t.Errorf("UploadTimeout() = %v, want fallback 60s", cfg.UploadTimeout())
	}
}
