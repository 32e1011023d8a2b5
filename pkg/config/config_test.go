package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/ookla/speedtest-extract/pkg/config"
	"github.com/ookla/speedtest-extract/pkg/session"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "speedtest-extract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	keyring.MockInit()

	tests := []struct {
		name    string
		content string
		env     map[string]string
		secret  string
		want    *config.Config
		wantErr error
	}{
		{
			name: "happy path",
			content: `api_key: key
api_secret: secret
extract_url: https://example.com/extracts
storage_directory: /data
retry_max: 2
timeout: 5m
`,
			want: &config.Config{
				APIKey:           "key",
				APISecret:        "secret",
				ExtractURL:       "https://example.com/extracts",
				StorageDirectory: "/data",
				RetryMax:         2,
				Timeout:          5 * time.Minute,
			},
		},
		{
			name: "defaults applied",
			content: `api_key: key
api_secret: secret
`,
			want: &config.Config{
				APIKey:           "key",
				APISecret:        "secret",
				ExtractURL:       session.DefaultExtractURL,
				StorageDirectory: ".",
			},
		},
		{
			name: "environment overrides",
			content: `api_key: key
api_secret: secret
`,
			env: map[string]string{
				"SPEEDTEST_API_KEY":           "env-key",
				"SPEEDTEST_API_SECRET":        "env-secret",
				"SPEEDTEST_STORAGE_DIRECTORY": "/env",
				"SPEEDTEST_RETRY_MAX":         "3",
			},
			want: &config.Config{
				APIKey:           "env-key",
				APISecret:        "env-secret",
				ExtractURL:       session.DefaultExtractURL,
				StorageDirectory: "/env",
				RetryMax:         3,
			},
		},
		{
			name:    "secret from keyring",
			content: "api_key: keyring-key\n",
			secret:  "keyring-secret",
			want: &config.Config{
				APIKey:           "keyring-key",
				APISecret:        "keyring-secret",
				ExtractURL:       session.DefaultExtractURL,
				StorageDirectory: ".",
			},
		},
		{
			name:    "missing secret",
			content: "api_key: lonely-key\n",
			wantErr: config.ErrMissingAuth,
		},
		{
			name: "placeholder values",
			content: `api_key: my-api-key
api_secret: my-api-secret
`,
			wantErr: config.ErrDefaultConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.secret != "" {
				require.NoError(t, config.StoreSecret(tt.want.APIKey, tt.secret))
			}

			got, err := config.Load(writeConfig(t, tt.content))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_NotExist(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speedtest-extract.yaml")
	require.NoError(t, config.WriteDefault(path))

	// The placeholders must be replaced before the config can be used.
	_, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrDefaultConfig)
}

func TestStoreSecret(t *testing.T) {
	keyring.MockInit()

	assert.ErrorIs(t, config.StoreSecret("", "secret"), config.ErrMissingAuth)
	require.NoError(t, config.StoreSecret("key", "secret"))

	got, err := keyring.Get(config.KeyringService, "key")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}
