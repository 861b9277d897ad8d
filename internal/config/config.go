package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for phorg.
type Config struct {
	BaseDir   string          `toml:"base_dir"`
	LogDir    string          `toml:"log_dir"`
	Views     ViewsConfig     `toml:"views"`
	Digger    DiggerConfig    `toml:"digger"`
	Geocode   GeocodeConfig   `toml:"geocode"`
	Extractor ExtractorConfig `toml:"extractor"`
}

// ViewsConfig selects which link views are maintained and how links are made.
type ViewsConfig struct {
	Symlink  bool `toml:"symlink"` // symlinks instead of hardlinks
	Import   bool `toml:"import"`
	Time     bool `toml:"time"`
	Camera   bool `toml:"camera"`
	Location bool `toml:"location"`
}

// DiggerConfig tunes source-tree traversal. Extensions extend the built-in
// media extension set; ignore entries are matched against directory names.
type DiggerConfig struct {
	Extensions  []string `toml:"extensions"`
	IgnoreNames []string `toml:"ignore_names"`
	IgnoreGlobs []string `toml:"ignore_globs"`
}

// GeocodeConfig tunes the reverse-geocoding client and its cache.
type GeocodeConfig struct {
	URL         string  `toml:"url"`
	Language    string  `toml:"language,omitempty"`
	ClosenessKm float64 `toml:"closeness_km"`
	Attempts    int     `toml:"attempts"`
	BackoffMs   int     `toml:"backoff_ms"`
	TimeoutMs   int     `toml:"timeout_ms"`
}

// ExtractorConfig selects the metadata extractor.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ExtractorConfig struct {
	Type         string   `toml:"type"`                    // "exiftool" (default) or "native"
	Command      string   `toml:"command,omitempty"`       // only used for type=exiftool
	RecycleAfter int      `toml:"recycle_after,omitempty"` // only used for type=exiftool
	Scrub        []string `toml:"scrub,omitempty"`
}

// NewConfig creates a new Config with the provided base directory and
// default settings: all views on, hardlinks, exiftool extraction.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Views: ViewsConfig{
			Import:   true,
			Time:     true,
			Camera:   true,
			Location: true,
		},
		Geocode: GeocodeConfig{
			URL:         "https://nominatim.openstreetmap.org/reverse",
			ClosenessKm: 10,
			Attempts:    3,
			BackoffMs:   1000,
			TimeoutMs:   10000,
		},
		Extractor: ExtractorConfig{
			Type: "exiftool",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
