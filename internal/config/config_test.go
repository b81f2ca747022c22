package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaultsWhenFilesMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, ".env"), filepath.Join(dir, "services.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxFiles, cfg.Upload.MaxFiles)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.Upload.MaxFileSize)
	assert.Equal(t, DefaultMatchThreshold, cfg.Matching.Threshold)
	assert.Equal(t, []string{"active"}, cfg.Matching.ActiveStatuses)
	assert.Equal(t, DefaultAITimeout, cfg.AI.Timeout)
	assert.Equal(t, 3, cfg.Extraction.Parallelism)
	assert.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "services.yaml", `
server:
  port: 9000
upload:
  max_files: 3
  reject_duplicates: true
ai:
  timeout: 15s
matching:
  threshold: 0.8
  active_statuses: [active, probation]
storage:
  backend: s3
  s3:
    bucket: from-yaml
`)
	envPath := writeFile(t, dir, ".env", "GEMINI_API_KEY=\"abc123\"\n")
	t.Setenv("BANK_STMT_S3_BUCKET", "from-env")
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := Load(envPath, path)
	require.NoError(t, err)
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Upload.MaxFiles)
	assert.True(t, cfg.Upload.RejectDuplicates)
	assert.Equal(t, 15*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 0.8, cfg.Matching.Threshold)
	assert.Equal(t, []string{"active", "probation"}, cfg.Matching.ActiveStatuses)
	assert.Equal(t, "from-env", cfg.Storage.S3.Bucket)
	assert.Equal(t, "abc123", cfg.AI.APIKey)
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "services.yaml", "matching:\n  threshold: 1.5\n")
	_, err := Load("", path)
	assert.Error(t, err)
}

func TestLoadRejectsIncompleteBackend(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "services.yaml", "storage:\n  backend: supabase\n")
	_, err := Load("", path)
	assert.Error(t, err)
}
