// Package config loads the optional .testlink.yaml project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the project root.
const FileName = ".testlink.yaml"

const defaultMaxFileSize = 1_000_000 // 1 MB

// Config controls which files are scanned and how they are classified.
type Config struct {
	// Production lists directories (relative to the root) holding production code.
	Production []string `yaml:"production"`
	// Tests lists directories holding tests.
	Tests []string `yaml:"tests"`
	// Exclude lists doublestar globs of paths never scanned.
	Exclude []string `yaml:"exclude"`
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Production:  []string{"src", "app"},
		Tests:       []string{"tests"},
		Exclude:     []string{"vendor/**", "**/node_modules/**"},
		MaxFileSize: defaultMaxFileSize,
	}
}

// Load reads path, or <root>/.testlink.yaml when path is empty, on top of
// the defaults. A missing default file is not an error; a missing explicit
// file is.
func Load(root, path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, FileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.merge(&fileCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if len(o.Production) > 0 {
		c.Production = o.Production
	}
	if len(o.Tests) > 0 {
		c.Tests = o.Tests
	}
	if o.Exclude != nil {
		c.Exclude = o.Exclude
	}
	if o.MaxFileSize > 0 {
		c.MaxFileSize = o.MaxFileSize
	}
}

// Validate checks directory entries and exclude patterns.
func (c *Config) Validate() error {
	if len(c.Production) == 0 {
		return errors.New("production: at least one directory is required")
	}
	if len(c.Tests) == 0 {
		return errors.New("tests: at least one directory is required")
	}
	for _, dir := range append(append([]string(nil), c.Production...), c.Tests...) {
		if filepath.IsAbs(dir) || strings.HasPrefix(filepath.Clean(dir), "..") {
			return fmt.Errorf("directory %q must be relative to the project root", dir)
		}
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("exclude: invalid pattern %q", pattern)
		}
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
