// Package config loads the project configuration: interop.yaml, then
// INTEROP_* environment variables. CLI flags are applied by the caller last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/photovoltex/interop/internal/naming"
)

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = "interop.yaml"

// Config is the project configuration.
type Config struct {
	// Specs is the directory holding the CUE declaration package.
	Specs string `yaml:"specs" env:"SPECS"`
	// Out is the directory the root package is generated into.
	Out string `yaml:"out" env:"OUT"`
	// Module is the import path of Out. Needed to combine namespaces.
	Module string `yaml:"module" env:"MODULE"`
	// Package is the name of the root package.
	Package string `yaml:"package" env:"PACKAGE"`
	// Store is the registry ledger database. Empty disables the ledger.
	Store string `yaml:"store" env:"STORE"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Specs:   "specs",
		Out:     "api",
		Package: "api",
		Store:   filepath.Join(".interop", "ledger.db"),
	}
}

// Load reads the config file at path over the defaults, then applies
// environment overrides. An empty path reads DefaultFile when it exists.
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		cfg.resolve(filepath.Dir(path))
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "INTEROP_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) resolve(base string) {
	for _, p := range []*string{&c.Specs, &c.Out, &c.Store} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate checks the fields that have a fixed shape.
func (c Config) Validate() error {
	var errs []error
	if c.Specs == "" {
		errs = append(errs, errors.New("specs: directory required"))
	}
	if c.Out == "" {
		errs = append(errs, errors.New("out: directory required"))
	}
	if !naming.IsPackageName(c.Package) {
		errs = append(errs, fmt.Errorf("package: %q is not a valid package name", c.Package))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
