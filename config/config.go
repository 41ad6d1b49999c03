package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the curator tool.
type Config struct {
	Library   LibraryConfig   `yaml:"library"`
	Search    SearchConfig    `yaml:"search"`
	Anchor    AnchorConfig    `yaml:"anchor"`
	Selection SelectionConfig `yaml:"selection"`
	Gate      GateConfig      `yaml:"gate"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LibraryConfig locates the post/image corpus.
type LibraryConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig selects and tunes the nearest-neighbor backend.
type SearchConfig struct {
	Backend    string `yaml:"backend"` // "bolt" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
	Dimension  int    `yaml:"dimension"`
	ScanLimit  int    `yaml:"scan_limit"` // brute-force scan cap (0 = unlimited)
}

// AnchorConfig tunes anchor construction.
type AnchorConfig struct {
	WindowDays          int     `yaml:"window_days"`
	CoverWindowDays     int     `yaml:"cover_window_days"`
	PostLimit           int     `yaml:"post_limit"`
	ImageLimit          int     `yaml:"image_limit"`
	UniformityThreshold float64 `yaml:"uniformity_threshold"`
	CoverSimThreshold   float64 `yaml:"cover_sim_threshold"`
	RecentDays          int     `yaml:"recent_days"`
}

// SelectionConfig tunes the MMR diversifier and pool filtering.
type SelectionConfig struct {
	Lambda              float64  `yaml:"lambda"`
	MinPairwiseDistance float64  `yaml:"min_pairwise_distance"`
	MaxAnchorDistance   float64  `yaml:"max_anchor_distance"`
	RetrieveMin         int      `yaml:"retrieve_min"`
	RetrievePerK        int      `yaml:"retrieve_per_k"`
	ReuseCooldownDays   int      `yaml:"reuse_cooldown_days"`
	ExcludeUsernames    []string `yaml:"exclude_usernames"`
	BannedKeywords      []string `yaml:"banned_keywords"`
}

// GateConfig configures the optional content gate.
type GateConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Path: "",
		},
		Search: SearchConfig{
			Backend:   "bolt",
			Dimension: 768,
			ScanLimit: 0,
		},
		Anchor: AnchorConfig{
			WindowDays:          90,
			CoverWindowDays:     180,
			PostLimit:           500,
			ImageLimit:          3000,
			UniformityThreshold: 0.92,
			CoverSimThreshold:   0.92,
			RecentDays:          14,
		},
		Selection: SelectionConfig{
			Lambda:              0.7,
			MinPairwiseDistance: 0.12,
			MaxAnchorDistance:   0.25,
			RetrieveMin:         200,
			RetrievePerK:        40,
			ReuseCooldownDays:   14,
			BannedKeywords: []string{
				"nails", "manicure", "makeup", "hairstyle",
				"scenery", "landscape", "sunset", "beach",
			},
		},
		Gate: GateConfig{
			Enabled:   false, // requires API key
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for curator.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "curator.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".curator", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LibraryDBPath returns the path to the library database.
func LibraryDBPath(dir string, cfg *Config) string {
	if cfg.Library.Path != "" {
		return cfg.Library.Path
	}
	return filepath.Join(dir, ".curator", "library.db")
}

// AnchorDBPath returns the path to the anchor cache database.
func AnchorDBPath(dir string) string {
	return filepath.Join(dir, ".curator", "anchors.db")
}

// SearchDBPath returns the path to the sqlite-vec database.
func SearchDBPath(dir string, cfg *Config) string {
	if cfg.Search.SQLitePath != "" {
		return cfg.Search.SQLitePath
	}
	return filepath.Join(dir, ".curator", "vectors.db")
}

// EnsureDataDir ensures the .curator directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".curator"), 0755)
}
