package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that must not be used for a batch.
var ErrInvalid = errors.New("config: invalid")

// Config is the persistent application configuration
type Config struct {
	// Paths. Empty values fall back to files under DataDir.
	DataDir     string `yaml:"data_dir"`
	DBPath      string `yaml:"db_path"`
	LexiconPath string `yaml:"lexicon_path"` // Empty = built-in lexicon
	EventLog    string `yaml:"event_log"`

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Correlation and prediction windows
	Windows Windows `yaml:"windows"`

	// Coordinate fallback radius for incidents whose text names no location
	NearestRadiusKm float64 `yaml:"nearest_radius_km"`

	// Language relevance points (0..5) keyed by ISO 639-1 code
	Languages map[string]int `yaml:"languages"`

	Feeds []Feed      `yaml:"feeds"`
	Fetch FetchConfig `yaml:"fetch"`
}

// Feed is an RSS/Atom source of incident reports.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// FetchConfig tunes the feed collector.
type FetchConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"` // Minimum spacing between outbound requests
}

// MarshalYAML writes durations as "30s" strings, the only form yaml.v3
// decodes back into time.Duration.
func (f FetchConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Concurrency int    `yaml:"concurrency"`
		Timeout     string `yaml:"timeout"`
		Interval    string `yaml:"interval"`
	}{f.Concurrency, f.Timeout.String(), f.Interval.String()}, nil
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        "info",
		MetricsAddr:     "127.0.0.1:9464",
		Windows:         DefaultWindows(),
		NearestRadiusKm: 15,
		Languages: map[string]int{
			"ru": 5,
			"uk": 5,
			"be": 4,
			"nl": 3,
			"de": 2,
			"en": 2,
			"da": 2,
			"no": 2,
			"fr": 1,
		},
		Feeds: []Feed{
			{Name: "NOS", URL: "https://feeds.nos.nl/nosnieuwsalgemeen"},
			{Name: "NU.nl", URL: "https://www.nu.nl/rss/Algemeen"},
			{Name: "Google News drones NL", URL: "https://news.google.com/rss/search?q=drone+luchthaven+OR+vliegbasis&hl=nl&gl=NL&ceid=NL:nl"},
			{Name: "Google News drones EU", URL: "https://news.google.com/rss/search?q=drone+sighting+airport&hl=en&gl=BE&ceid=BE:en"},
		},
		Fetch: FetchConfig{
			Concurrency: 4,
			Timeout:     30 * time.Second,
			Interval:    500 * time.Millisecond,
		},
	}
}

// DefaultDataDir returns ~/.cuas, or .cuas when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cuas"
	}
	return filepath.Join(home, ".cuas")
}

// Load reads config from path, or returns defaults when the file does not
// exist. Fields the file leaves out keep their defaults. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// Save writes config to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides fields from CUAS_* environment variables.
func (c *Config) ApplyEnv() {
	c.DataDir = GetEnv("CUAS_DATA_DIR", c.DataDir)
	c.DBPath = GetEnv("CUAS_DB", c.DBPath)
	c.LexiconPath = GetEnv("CUAS_LEXICON", c.LexiconPath)
	c.LogLevel = GetEnv("CUAS_LOG_LEVEL", c.LogLevel)
	c.MetricsAddr = GetEnv("CUAS_METRICS_ADDR", c.MetricsAddr)
	c.EventLog = GetEnv("CUAS_EVENT_LOG", c.EventLog)
}

// DB returns the SQLite path.
func (c *Config) DB() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "cuas.db")
}

// Events returns the JSONL event log path.
func (c *Config) Events() string {
	if c.EventLog != "" {
		return c.EventLog
	}
	return filepath.Join(c.DataDir, "cuas.events.jsonl")
}

// Validate checks everything a batch depends on. Any error is fatal.
func (c *Config) Validate() error {
	if err := c.Windows.Validate(); err != nil {
		return err
	}
	if c.NearestRadiusKm < 0 {
		return fmt.Errorf("%w: nearest_radius_km must not be negative", ErrInvalid)
	}
	for lang, pts := range c.Languages {
		if pts < 0 || pts > 5 {
			return fmt.Errorf("%w: language %q relevance %d outside 0..5", ErrInvalid, lang, pts)
		}
	}
	for i, f := range c.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("%w: feed %d (%s) has no url", ErrInvalid, i, f.Name)
		}
	}
	if c.Fetch.Concurrency < 0 {
		return fmt.Errorf("%w: fetch.concurrency must not be negative", ErrInvalid)
	}
	return nil
}

// LanguageRelevance returns the language table with keys lowercased.
func (c *Config) LanguageRelevance() map[string]int {
	out := make(map[string]int, len(c.Languages))
	for k, v := range c.Languages {
		out[strings.ToLower(k)] = v
	}
	return out
}

