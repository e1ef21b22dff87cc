// Package config reads the TOML configuration file that backs the
// cmd/tspdf CLI: default TSA endpoints, retry/timeout policy, and the trust
// roots used by the timestamp and archive subcommands. Library callers of
// tsaclient/orchestrate/ltv never need this package; it exists purely so
// the CLI does not hardcode operational defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultLocation is where the CLI looks for a config file when none is
// given on the command line.
var DefaultLocation = "./tspdf.conf"

// Settings holds the config loaded by the most recent call to Read, a
// convenience for the CLI entrypoint only; every other package takes its
// configuration as explicit arguments.
var Settings Config

// TSAEndpoint names one entry in the config file's TSA catalog.
type TSAEndpoint struct {
	Name   string `toml:"name"`
	URL    string `toml:"url"`
	Policy string `toml:"policy"`
}

// Config is the root of the TOML config file.
type Config struct {
	DefaultTSA     string        `toml:"default_tsa"`
	TSAs           []TSAEndpoint `toml:"tsa"`
	HashAlgorithm  string        `toml:"hash_algorithm"`
	TimeoutMS      int           `toml:"timeout_ms"`
	Retry          int           `toml:"retry"`
	RetryDelayMS   int           `toml:"retry_delay_ms"`
	SignatureSize  int           `toml:"signature_size"`
	EnableLTV      bool          `toml:"enable_ltv"`
	TrustRootsPath string        `toml:"trust_roots_path"`
}

// Endpoint resolves name to its configured URL, falling back to
// DefaultTSA when name is empty. It returns an error if no such entry
// exists, since an unresolvable TSA name should fail loudly rather than
// silently hit an empty URL.
func (c Config) Endpoint(name string) (TSAEndpoint, error) {
	if name == "" {
		name = c.DefaultTSA
	}
	for _, t := range c.TSAs {
		if t.Name == name {
			return t, nil
		}
	}
	return TSAEndpoint{}, fmt.Errorf("config: no TSA entry named %q", name)
}

// Read loads configfile into Settings. It does not fail the process when
// the file is missing: the CLI falls back to its own flag defaults, so a
// missing config file is a normal (if uncommon) deployment.
func Read(configfile string) error {
	if _, err := os.Stat(configfile); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var c Config
	if _, err := toml.DecodeFile(configfile, &c); err != nil {
		return fmt.Errorf("config: failed to decode %s: %w", configfile, err)
	}

	Settings = c
	return nil
}
