// Package config loads the canonproof CLI configuration: an optional YAML
// file overlaid with CANONPROOF_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/internal/logging"
	"xdao.co/canonproof/keys"
	"xdao.co/canonproof/versioned"
)

const (
	EnvConfig      = "CANONPROOF_CONFIG"
	EnvLogLevel    = "CANONPROOF_LOG_LEVEL"
	EnvLogFormat   = "CANONPROOF_LOG_FORMAT"
	EnvHashVersion = "CANONPROOF_HASH_VERSION"
	EnvKeyDir      = "CANONPROOF_KEY_DIR"
	EnvCASConfig   = "CANONPROOF_CAS_CONFIG"
	EnvStrict      = "CANONPROOF_STRICT"
	EnvTimeout     = "CANONPROOF_TIMEOUT"
)

type Log struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type Signer struct {
	Name      string `yaml:"name"`
	Role      string `yaml:"role"`
	Algorithm string `yaml:"algorithm"`
}

type Config struct {
	Log         Log    `yaml:"log"`
	Contract    string `yaml:"contract"`
	HashVersion string `yaml:"hash_version"`
	KeyDir      string `yaml:"key_dir"`
	Signer      Signer `yaml:"signer"`
	// CASConfig is a path to a storage/casconfig file.
	CASConfig string `yaml:"cas_config"`
	// Strict makes verification commands require signatures.
	Strict  bool          `yaml:"strict"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() Config {
	return Config{
		Log:         Log{Format: logging.FormatText, Level: "info"},
		Contract:    canon.Governance.String(),
		HashVersion: versioned.DefaultVersion,
		Signer:      Signer{Algorithm: keys.AlgEd25519},
		Timeout:     30 * time.Second,
	}
}

// Load reads path (or $CANONPROOF_CONFIG when path is empty), then applies
// environment overrides. A missing file is only an error when a path was
// named explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Log.Level = envString(EnvLogLevel, c.Log.Level)
	c.Log.Format = envString(EnvLogFormat, c.Log.Format)
	c.HashVersion = envString(EnvHashVersion, c.HashVersion)
	c.KeyDir = envString(EnvKeyDir, c.KeyDir)
	c.CASConfig = envString(EnvCASConfig, c.CASConfig)
	strict, err := envBool(EnvStrict, c.Strict)
	if err != nil {
		return err
	}
	c.Strict = strict
	timeout, err := envDuration(EnvTimeout, c.Timeout)
	if err != nil {
		return err
	}
	c.Timeout = timeout
	return nil
}

func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatText:
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if _, err := canon.ParseContract(c.Contract); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := versioned.StandardRegistry().Lookup(c.HashVersion); err != nil {
		return fmt.Errorf("config: hash_version: %w", err)
	}
	switch c.Signer.Algorithm {
	case keys.AlgEd25519, keys.AlgDilithium3:
	default:
		return fmt.Errorf("config: unknown signer algorithm %q", c.Signer.Algorithm)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative timeout")
	}
	return nil
}

// ContractValue returns the parsed default contract. Validate must have
// passed.
func (c Config) ContractValue() canon.Contract {
	ct, _ := canon.ParseContract(c.Contract)
	return ct
}

// KeyStore opens the key store at KeyDir, or the default directory.
func (c Config) KeyStore() (*keys.KeyStore, error) {
	return keys.CreateKeyStore(c.KeyDir)
}
