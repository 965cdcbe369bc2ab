package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment overrides are applied on top by ApplyEnv.

const (
	// ModeUpcoming is the only list mode with filtering semantics.
	ModeUpcoming = "upcoming"

	// UntilPolicyDrop excludes recurring events with UNTIL from upcoming lists.
	UntilPolicyDrop = "drop"
	// UntilPolicyResolve resolves them within their UNTIL bound.
	UntilPolicyResolve = "resolve"
)

// Environment variables recognized by ApplyEnv and the CLI.
const (
	EnvConfigPath = "GCALFEED_CONFIG"
	EnvListen     = "GCALFEED_LISTEN"
	EnvLogLevel   = "GCALFEED_LOG_LEVEL"
	EnvTimezone   = "GCALFEED_TIMEZONE"
)

// FeedConfig describes a single calendar feed subscription.
type FeedConfig struct {
	// URL is the ICS endpoint (e.g. a Google Calendar "secret address").
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// GravatarConfig controls avatar URLs built by the render package.
type GravatarConfig struct {
	// Size is the square image size in pixels.
	Size int `yaml:"size" json:"size"`
	// Rating is one of g, pg, r, x.
	Rating string `yaml:"rating" json:"rating"`
	// Default is the fallback avatar style (identicon, monsterid, wavatar, ...).
	Default string `yaml:"default" json:"default"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone event start times are aligned to.
	// "Local" (default) uses the process timezone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds the per-feed HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Feeds is the list of subscribed calendar feeds.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// Items is the default number of list entries.
	Items int `yaml:"items" json:"items"`

	// Mode is the default list mode; only "upcoming" filters.
	Mode string `yaml:"mode" json:"mode"`

	// HorizonDays bounds the search for the next occurrence of a recurring event.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// UntilPolicy decides what happens to recurring events that carry UNTIL:
	//   - "drop" (default): they never show up in upcoming lists
	//   - "resolve": their next occurrence before UNTIL is computed
	UntilPolicy string `yaml:"until_policy" json:"until_policy"`

	// DateFormat / TimeFormat are Go time layouts used by the shortlist.
	DateFormat string `yaml:"date_format" json:"date_format"`
	TimeFormat string `yaml:"time_format" json:"time_format"`

	// EmptyMessage is shown when no events are available.
	EmptyMessage string `yaml:"empty_message" json:"empty_message"`

	Gravatar GravatarConfig `yaml:"gravatar" json:"gravatar"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "Local",
		RefreshCron:  "*/15 * * * *",
		LogLevel:     "info",
		CacheDir:     "/var/lib/gcalfeed/ics-cache",
		Feeds:        []FeedConfig{},
		Items:        5,
		Mode:         ModeUpcoming,
		HorizonDays:  365,
		UntilPolicy:  UntilPolicyDrop,
		DateFormat:   "02.01.2006",
		TimeFormat:   "15:04 Uhr",
		EmptyMessage: "Keine Veranstaltungen verfügbar.",
		Gravatar: GravatarConfig{
			Size:    80,
			Rating:  "pg",
			Default: "identicon",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	if c.Items <= 0 {
		c.Items = def.Items
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	switch c.UntilPolicy {
	case UntilPolicyDrop, UntilPolicyResolve:
		// ok
	default:
		// Unknown value; keep the conservative behavior.
		c.UntilPolicy = UntilPolicyDrop
	}
	if c.DateFormat == "" {
		c.DateFormat = def.DateFormat
	}
	if c.TimeFormat == "" {
		c.TimeFormat = def.TimeFormat
	}
	if c.EmptyMessage == "" {
		c.EmptyMessage = def.EmptyMessage
	}
	if c.Gravatar.Size <= 0 {
		c.Gravatar.Size = def.Gravatar.Size
	}
	if c.Gravatar.Rating == "" {
		c.Gravatar.Rating = def.Gravatar.Rating
	}
	if c.Gravatar.Default == "" {
		c.Gravatar.Default = def.Gravatar.Default
	}
}

// Location resolves Timezone. An empty or "Local" value, or an unknown zone
// name, yields time.Local together with the lookup error (if any).
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "Local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimezone)); v != "" {
		c.Timezone = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".gcalfeed-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
