package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration constants
const (
	DefaultReadTimeout    = 10 * time.Second
	DefaultBufferReadSize = 4096
)

// Config holds application configuration. Most fields have a CLI flag
// and a YAML key; HeaderNameMap is set only from a YAML config file,
// and ShowVersion only from its flag.
type Config struct {
	DefinitionPath   string            `yaml:"definition"`
	DefinitionFormat string            `yaml:"definition_format"` // "xtce", "csv", or "" to infer from extension
	InputPath        string            `yaml:"input"`
	Connect          string            `yaml:"connect"` // TCP host:port source, alternative to InputPath
	OutputPath       string            `yaml:"output"`  // NDJSON destination, "-" or "" for stdout
	LogFile          string            `yaml:"log_file"`
	RootContainer    string            `yaml:"root_container"`
	HeaderNameMap    map[string]string `yaml:"header_name_map"`
	SkipHeaderBytes  int               `yaml:"skip_secondary_header_bytes"`
	WordSizeBytes    int               `yaml:"word_size_bytes"`
	HeadersOnly      bool              `yaml:"headers_only"`
	YieldUnrecogn    bool              `yaml:"yield_unrecognized"`
	ShowProgress     bool              `yaml:"show_progress"`
	ReadTimeout      time.Duration     `yaml:"read_timeout"`
	Verbose          bool              `yaml:"verbose"`
	ShowVersion      bool              `yaml:"-"`
}

// LoadConfigFile overlays values from a YAML file onto the config.
// Flags set on the command line take precedence because the CLI
// re-applies them after this runs.
func (c *Config) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}
