package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/coachviz/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigInitCmd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cmd := &cobra.Command{}
	require.NoError(t, configInitCmd.RunE(cmd, nil))

	configPath := filepath.Join(tmpDir, ".coachviz", "config.yaml")
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)

	var parsed config.Config
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, config.ProviderGemini, parsed.Providers.Default)
	assert.Len(t, parsed.Providers.Registry, 3)
	assert.Equal(t, config.HealthCacheMemory, parsed.Health.Cache)

	// a second init leaves the file alone
	require.NoError(t, os.WriteFile(configPath, []byte("log:\n  level: debug\n"), 0644))
	require.NoError(t, configInitCmd.RunE(&cobra.Command{}, nil))
	data, err = os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "log:\n  level: debug\n", string(data))
}

func TestRedactConfigSecrets(t *testing.T) {
	original := &config.Config{
		Providers: config.ProvidersConfig{
			Registry: []config.ProviderConfig{
				{Name: config.ProviderGemini, APIKey: "AIza-secret-123456"},
				{Name: config.ProviderVertexAI, Project: "coach-project"},
			},
		},
		Health: config.HealthConfig{RedisPassword: "hunter22"},
	}

	redacted := redactConfigSecrets(original)
	assert.Equal(t, "AI**************56", redacted.Providers.Registry[0].APIKey)
	assert.Equal(t, "", redacted.Providers.Registry[1].APIKey)
	assert.Equal(t, "coach-project", redacted.Providers.Registry[1].Project)
	assert.Equal(t, "hu****22", redacted.Health.RedisPassword)

	assert.Equal(t, "AIza-secret-123456", original.Providers.Registry[0].APIKey, "original must not be modified")
	assert.Equal(t, "hunter22", original.Health.RedisPassword)
	assert.Nil(t, redactConfigSecrets(nil))
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "abc", want: "****"},
		{in: "abcd", want: "****"},
		{in: "abcde", want: "ab*de"},
		{in: "sk-or-v1-0123", want: "sk*********23"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskSecret(tt.in), tt.in)
	}
}
