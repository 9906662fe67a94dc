package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestDoValidate_Valid(t *testing.T) {
	cfgPath := writeConfig(t, `
num_workers: 2
seeds:
  - https://contxto.com/es/
  - https://latamlist.com/
classifier:
  enabled: false
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "", &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "OK: 2 seed URL(s)")
	assert.Contains(t, stdout.String(), "classifier disabled")
	assert.Contains(t, stdout.String(), "Configuration valid")
}

func TestDoValidate_SeedsFromFile(t *testing.T) {
	cfgPath := writeConfig(t, `
seeds: ["https://contxto.com/es/"]
classifier:
  enabled: false
`)
	seedsPath := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(seedsPath, []byte("# extra\nhttps://startupeable.com/noticias/\n\n"), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, seedsPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK: 2 seed URL(s)")
}

func TestDoValidate_NoSeeds(t *testing.T) {
	cfgPath := writeConfig(t, `
classifier:
  enabled: false
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "no seed URLs")
}

func TestDoValidate_BadPattern(t *testing.T) {
	cfgPath := writeConfig(t, `
seeds: ["https://contxto.com/es/"]
reject_path_patterns: ["(unclosed"]
classifier:
  enabled: false
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "reject_path_patterns")
}

func TestDoValidate_MissingAPIKeyIsWarning(t *testing.T) {
	t.Setenv("NEWS_CRAWLER_TEST_KEY", "")
	cfgPath := writeConfig(t, `
seeds: ["https://contxto.com/es/"]
classifier:
  api_key_env: NEWS_CRAWLER_TEST_KEY
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "", &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "WARN:")
	assert.Contains(t, stdout.String(), "NEWS_CRAWLER_TEST_KEY")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", "", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoDedupeLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parsed.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://b.com/x\nhttps://a.com/y\nhttps://b.com/x\n"), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doDedupeLedger(path, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "2 unique URLs")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://a.com/y\nhttps://b.com/x\n", string(data))
}

func TestDoDedupeLedger_Missing(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doDedupeLedger(filepath.Join(t.TempDir(), "none.txt"), &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestLoadAndValidateConfig_AppliesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `seeds: ["https://contxto.com/es/"]`)
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg, err := loadAndValidateConfig(cfgPath, log)

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, 10, cfg.MaxPagesPerTarget)
	assert.Equal(t, "articles.jsonl", cfg.Sink.JSONLFilename)
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	assert.Contains(t, out, "crawl")
	assert.Contains(t, out, "watch")
	assert.Contains(t, out, "validate")
	assert.Contains(t, out, "dedupe-ledger")
	assert.Contains(t, out, "version")
}
