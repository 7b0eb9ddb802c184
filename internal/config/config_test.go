package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"data_dir": "/tmp/ck"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, filepath.Join("/tmp/ck", "index.sqlite"), cfg.Database.Path)
	require.Equal(t, filepath.Join("/tmp/ck", "index"), cfg.Index.Dir)
	require.Equal(t, "local", cfg.FileStore.Type)
	require.Equal(t, DefaultCompose(), cfg.Compose)
	require.Equal(t, "info", cfg.LogConfig.Level)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
data_dir: /srv/ck
port: 9000
compose:
  max_tokens: 4000
  heuristic_pack_limit: 5
  unknown_policy: exclude
ai:
  providers:
    - name: claude
      type: anthropic
      data:
        api_key: k
  oracle:
    - provider: claude
      model: claude-3-5-haiku-latest
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 4000, cfg.Compose.MaxTokens)
	require.Equal(t, 5, cfg.Compose.HeuristicPackLimit)
	require.Equal(t, 2, cfg.Compose.HeuristicStageTwoLimit)
	require.Equal(t, UnknownPolicyExclude, cfg.Compose.UnknownPolicy)
	require.Len(t, cfg.AI.Providers, 1)
	require.Equal(t, "anthropic", cfg.AI.Providers[0].Type)
	require.Equal(t, "claude", cfg.AI.Oracle[0].Provider)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad driver", content: `{"database": {"driver": "mysql"}}`},
		{name: "postgres without dsn", content: `{"database": {"driver": "postgres"}}`},
		{name: "bad policy", content: `{"compose": {"unknown_policy": "drop"}}`},
		{name: "reserved over max", content: `{"compose": {"max_tokens": 400, "reserved_tokens": 500}}`},
		{name: "oracle without provider", content: `{"ai": {"oracle": [{"model": "x"}]}}`},
		{name: "bad json", content: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.json", tt.content))
			require.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default("")
	require.NoError(t, err)
	require.Equal(t, ".contextkit", cfg.DataDir)
	require.Equal(t, 500, cfg.Compose.ReservedTokens)
}
