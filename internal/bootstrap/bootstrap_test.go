package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	for _, name := range []string{
		"DIAPREDICT_AI_PROVIDER",
		"DIAPREDICT_AI_API_KEY",
		"DIAPREDICT_AI_REQUIRE_API_KEY",
		"DIAPREDICT_TELEMETRY_OTLP_ENDPOINT",
		"GOOGLE_GENAI_API_KEY",
		"GEMINI_API_KEY",
		"GOOGLE_API_KEY",
		"ANTHROPIC_API_KEY",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "diapredict.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		config     string
		provider   string
		configured bool
		wantErr    string
	}{
		{
			name:       "Missing key starts degraded",
			config:     "logging:\n  level: error\n",
			provider:   "gemini",
			configured: false,
		},
		{
			name:       "Anthropic with key",
			config:     "ai:\n  provider: anthropic\n  api_key: test-key\nlogging:\n  level: error\n",
			provider:   "anthropic",
			configured: true,
		},
		{
			name:    "Required key missing",
			config:  "ai:\n  require_api_key: true\n",
			wantErr: "configuration validation failed",
		},
		{
			name:    "Unknown provider",
			config:  "ai:\n  provider: llama\n",
			wantErr: "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := writeConfig(t, dir, tt.config)

			app, err := New(context.Background(), path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = app.Close(context.Background()) })

			status := app.Predictor.Status()
			assert.Equal(t, tt.provider, status.Provider)
			assert.Equal(t, tt.configured, status.Configured)
			assert.Equal(t, path, app.Config.ConfigFileUsed())
		})
	}
}

func TestNew_MissingConfigFile(t *testing.T) {
	dir := isolate(t)

	_, err := New(context.Background(), filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
}
