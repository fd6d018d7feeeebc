package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	wperrors "github.com/hpungsan/wpswap/internal/errors"
)

// Environment variables that override file settings.
const (
	EnvURL         = "WPSWAP_URL"
	EnvUsername    = "WPSWAP_USERNAME"
	EnvAppPassword = "WPSWAP_APP_PASSWORD"
	EnvFolder      = "WPSWAP_FOLDER"
)

// MaxPerPage is the largest page size the WordPress REST API accepts.
const MaxPerPage = 100

// Config holds application configuration.
type Config struct {
	// WordPressURL is the site root, e.g. https://example.com
	WordPressURL string `json:"wordpress_url,omitempty"`

	// Username is the WordPress login name (not the email address)
	Username string `json:"username,omitempty"`

	// AppPassword is a WordPress application password. Spaces are stripped on validation.
	AppPassword string `json:"app_password,omitempty"`

	// WebPFolder is the directory scanned for replacement files
	WebPFolder string `json:"webp_folder,omitempty"`

	// LocalExtensions selects which local files are candidates (default: webp)
	LocalExtensions []string `json:"local_extensions,omitempty"`

	// RemoteExtensions selects which media records can be replaced (default: png)
	RemoteExtensions []string `json:"remote_extensions,omitempty"`

	// ContentTypes lists the REST collections rewritten (default: posts, pages)
	ContentTypes []string `json:"content_types,omitempty"`

	// PerPage is the page size for paginated listings (max 100)
	PerPage int `json:"per_page,omitempty"`

	// RequestTimeoutSeconds bounds each non-upload request
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// UploadTimeoutSeconds bounds each media upload
	UploadTimeoutSeconds int `json:"upload_timeout_seconds,omitempty"`

	// MaxRetries is the number of retries for transient API failures.
	// Negative disables retries.
	MaxRetries int `json:"max_retries,omitempty"`

	// RewriteWorkers is the number of goroutines rewriting documents
	RewriteWorkers int `json:"rewrite_workers,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LocalExtensions:       []string{"webp"},
		RemoteExtensions:      []string{"png"},
		ContentTypes:          []string{"posts", "pages"},
		PerPage:               MaxPerPage,
		RequestTimeoutSeconds: 30,
		UploadTimeoutSeconds:  60,
		MaxRetries:            2,
		RewriteWorkers:        4,
	}
}

// Load loads configuration from baseDir/config.json and applies environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.wpswap.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return ApplyEnv(cfg, os.LookupEnv), nil
}

// LoadFile loads baseDir/config.json over the defaults without environment
// overrides, for rewriting the file.
func LoadFile(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.wpswap) and repo (.wpswap) directories.
// Repo config is found by walking upward from startDir to find the nearest .wpswap/config.json.
// Precedence: defaults < global < repo < environment.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return ApplyEnv(Merge(Merge(DefaultConfig(), global), repo), os.LookupEnv), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .wpswap/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".wpswap", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path on top of the defaults.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Save writes cfg to baseDir/config.json with owner-only permissions.
func Save(baseDir string, cfg *Config) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(baseDir, "config.json"), append(data, '\n'), 0600)
}

// ApplyEnv returns a copy of cfg with non-empty environment overrides applied.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) *Config {
	out := *cfg
	if v, ok := lookup(EnvURL); ok && strings.TrimSpace(v) != "" {
		out.WordPressURL = v
	}
	if v, ok := lookup(EnvUsername); ok && strings.TrimSpace(v) != "" {
		out.Username = v
	}
	if v, ok := lookup(EnvAppPassword); ok && strings.TrimSpace(v) != "" {
		out.AppPassword = v
	}
	if v, ok := lookup(EnvFolder); ok && strings.TrimSpace(v) != "" {
		out.WebPFolder = v
	}
	return &out
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars and non-empty lists.
// Lists replace rather than merge: an overlay's extension list is the whole list.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.WordPressURL = pickString(overlay.WordPressURL, base.WordPressURL)
	result.Username = pickString(overlay.Username, base.Username)
	result.AppPassword = pickString(overlay.AppPassword, base.AppPassword)
	result.WebPFolder = pickString(overlay.WebPFolder, base.WebPFolder)

	result.PerPage = pickInt(overlay.PerPage, base.PerPage)
	result.RequestTimeoutSeconds = pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.UploadTimeoutSeconds = pickInt(overlay.UploadTimeoutSeconds, base.UploadTimeoutSeconds)
	result.MaxRetries = pickInt(overlay.MaxRetries, base.MaxRetries)
	result.RewriteWorkers = pickInt(overlay.RewriteWorkers, base.RewriteWorkers)

	result.LocalExtensions = pickSlice(overlay.LocalExtensions, base.LocalExtensions)
	result.RemoteExtensions = pickSlice(overlay.RemoteExtensions, base.RemoteExtensions)
	result.ContentTypes = pickSlice(overlay.ContentTypes, base.ContentTypes)

	// Disabled tools accumulate across layers
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Validate checks the fields required to talk to a site and returns a
// normalized copy: trailing slash removed from the URL, spaces removed from
// the application password, numeric limits clamped.
// Every problem is reported at once as INVALID_CONFIG.
func (c *Config) Validate() (*Config, error) {
	return c.validate(true)
}

// ValidateSite is Validate without the folder requirement, for commands
// that only talk to the site.
func (c *Config) ValidateSite() (*Config, error) {
	return c.validate(false)
}

func (c *Config) validate(requireFolder bool) (*Config, error) {
	out := *c
	var problems []string

	out.WordPressURL = strings.TrimRight(strings.TrimSpace(out.WordPressURL), "/")
	out.Username = strings.TrimSpace(out.Username)
	out.AppPassword = strings.ReplaceAll(out.AppPassword, " ", "")
	out.WebPFolder = strings.TrimSpace(out.WebPFolder)

	if out.WordPressURL == "" {
		problems = append(problems, "wordpress_url is required")
	} else if u, err := url.Parse(out.WordPressURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("wordpress_url %q must be an http(s) URL", out.WordPressURL))
	}
	if out.Username == "" {
		problems = append(problems, "username is required")
	}
	if out.AppPassword == "" {
		problems = append(problems, "app_password is required")
	}
	if requireFolder && out.WebPFolder == "" {
		problems = append(problems, "webp_folder is required")
	}
	for _, ct := range out.ContentTypes {
		if ct != "posts" && ct != "pages" {
			problems = append(problems, fmt.Sprintf("content_types: unknown type %q (want posts or pages)", ct))
		}
	}

	if out.PerPage <= 0 || out.PerPage > MaxPerPage {
		out.PerPage = MaxPerPage
	}
	if out.RewriteWorkers <= 0 {
		out.RewriteWorkers = 1
	}

	if len(problems) > 0 {
		return nil, wperrors.NewInvalidConfig(problems)
	}
	return &out, nil
}

// Redacted returns a copy safe to print: the application password is masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.AppPassword != "" {
		out.AppPassword = "***"
	}
	return &out
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return secondsOr(c.RequestTimeoutSeconds, 30)
}

// UploadTimeout returns the per-upload timeout.
func (c *Config) UploadTimeout() time.Duration {
	return secondsOr(c.UploadTimeoutSeconds, 60)
}

// Summary lists the connection settings one per line, password masked.
func (c *Config) Summary() string {
	r := c.Redacted()
	lines := []string{
		"wordpress_url: " + orNotSet(r.WordPressURL),
		"username: " + orNotSet(r.Username),
		"app_password: " + orNotSet(r.AppPassword),
		"webp_folder: " + orNotSet(r.WebPFolder),
		"per_page: " + strconv.Itoa(r.PerPage),
	}
	return strings.Join(lines, "\n")
}

func secondsOr(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func orNotSet(s string) string {
	if s == "" {
		return "NOT SET"
	}
	return s
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickSlice(overlay, base []string) []string {
	if cleaned := mergeStringSlice(nil, overlay); len(cleaned) > 0 {
		return cleaned
	}
	return mergeStringSlice(nil, base)
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
