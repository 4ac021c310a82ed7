package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err, "default config should be written")
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "Заседание", cfg.Generation.FilePrefix)
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())
	assert.Equal(t, 1, cfg.Analysis.MaxConcurrent)
	assert.Equal(t, 1000, cfg.Generation.MaxProtocols)
	assert.Zero(t, cfg.Generation.TemplateTimeoutSeconds)
}

func TestLoadConfig_ReadsFileAndKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	xmlDoc := `<?xml version="1.0" encoding="UTF-8"?>
<Feniks>
  <Server><Port>9100</Port><BindAddress>127.0.0.1</BindAddress></Server>
  <Generation><FilePrefix>Протоколы</FilePrefix></Generation>
  <Storage><TemplateDriver>sqlite</TemplateDriver></Storage>
</Feniks>`
	require.NoError(t, os.WriteFile(path, []byte(xmlDoc), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.GetServerAddr())
	assert.Equal(t, "Протоколы", cfg.Generation.FilePrefix)
	assert.Equal(t, 1000, cfg.Generation.MaxProtocols)
	assert.Equal(t, "sqlite", cfg.Storage.TemplateDriver)
	assert.Equal(t, ".docx,.doc", cfg.Security.AcceptedFileTypes)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "7000")
	t.Setenv("ANALYSIS_URL", "http://analysis.local/analyze")
	t.Setenv("TEMPLATE_DRIVER", "SQLite")

	cfg, err := LoadConfig(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "http://analysis.local/analyze", cfg.Analysis.RemoteURL)
	assert.Equal(t, "sqlite", cfg.Storage.TemplateDriver)
}

func TestLoadConfig_InvalidXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("<Feniks><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.Storage.UploadsDirectory, cfg.Storage.SessionsDirectory} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestAcceptedFileTypes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.AcceptedFileTypes = " .docx , ,.doc"
	assert.Equal(t, []string{".docx", ".doc"}, cfg.AcceptedFileTypes())
}
