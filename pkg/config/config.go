package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/ookla/speedtest-extract/pkg/session"
)

const (
	// DefaultFile is the config file used when --config is not given.
	DefaultFile = "speedtest-extract.yaml"

	// KeyringService is the OS keyring service holding API secrets, keyed by API key.
	KeyringService = "speedtest-extract"

	placeholderKey    = "my-api-key"
	placeholderSecret = "my-api-secret"
)

var (
	ErrMissingAuth   = errors.New("config file requires api_key and api_secret")
	ErrDefaultConfig = errors.New("default values found, update the config file with your api key and secret")
)

type Config struct {
	APIKey           string        `yaml:"api_key"`
	APISecret        string        `yaml:"api_secret,omitempty"`
	ExtractURL       string        `yaml:"extract_url"`
	StorageDirectory string        `yaml:"storage_directory"`
	RetryMax         int           `yaml:"retry_max"`
	// Timeout is how long to wait for response headers. Body transfers are unbounded.
	Timeout          time.Duration `yaml:"timeout"`
}

// Default returns the values written to a fresh config file.
func Default() Config {
	return Config{
		APIKey:           placeholderKey,
		APISecret:        placeholderSecret,
		ExtractURL:       session.DefaultExtractURL,
		StorageDirectory: ".",
		RetryMax:         0,
		Timeout:          30 * time.Minute,
	}
}

// Load reads the config file, applies .env and SPEEDTEST_* environment
// overrides, falls back to the OS keyring for the secret and validates the result.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, xerrors.Errorf("unable to parse %s: %w", path, err)
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if cfg.APIKey != "" && cfg.APISecret == "" {
		secret, err := keyring.Get(KeyringService, cfg.APIKey)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return nil, xerrors.Errorf("keyring error: %w", err)
		}
		cfg.APISecret = secret
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes the default config to path.
func WriteDefault(path string) error {
	out, err := yaml.Marshal(Default())
	if err != nil {
		return xerrors.Errorf("failed to marshal config: %w", err)
	}
	if err = os.WriteFile(path, out, 0o600); err != nil {
		return xerrors.Errorf("failed to write config: %w", err)
	}
	return nil
}

// StoreSecret saves the API secret in the OS keyring.
func StoreSecret(apiKey, secret string) error {
	if apiKey == "" || secret == "" {
		return ErrMissingAuth
	}
	if err := keyring.Set(KeyringService, apiKey, secret); err != nil {
		return xerrors.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SPEEDTEST_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("SPEEDTEST_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("SPEEDTEST_EXTRACT_URL"); v != "" {
		c.ExtractURL = v
	}
	if v := os.Getenv("SPEEDTEST_STORAGE_DIRECTORY"); v != "" {
		c.StorageDirectory = v
	}
	if v := os.Getenv("SPEEDTEST_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RetryMax = n
		}
	}
}

func (c *Config) validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return ErrMissingAuth
	}
	if c.APIKey == placeholderKey || c.APISecret == placeholderSecret {
		return ErrDefaultConfig
	}
	if c.ExtractURL == "" {
		c.ExtractURL = session.DefaultExtractURL
	}
	if c.StorageDirectory == "" {
		c.StorageDirectory = "."
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	return nil
}
