package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// Credentials are the secrets a run needs, read from the environment
type Credentials struct {
	GeminiAPIKey string
	MongoURI     string // Empty disables the MongoDB sink
}

// Load reads a YAML config file. Defaults are applied by Validate, not here.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFiles loads .env files without overriding variables already set.
// If ENV_FILE is set only that file is read; otherwise .env.local then .env.
// Missing files are not an error.
func LoadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// ResolveCredentials reads credentials from the environment variables named
// in the config. A missing API key with the classifier enabled is fatal.
func (c *AppConfig) ResolveCredentials() (Credentials, error) {
	creds := Credentials{
		GeminiAPIKey: strings.TrimSpace(os.Getenv(c.Classifier.APIKeyEnv)),
		MongoURI:     strings.TrimSpace(os.Getenv(c.Sink.MongoURIEnv)),
	}
	if c.Classifier.IsEnabled() && creds.GeminiAPIKey == "" {
		return creds, fmt.Errorf("%w: %s not found in environment (set classifier.enabled: false to crawl without it)",
			utils.ErrConfigValidation, c.Classifier.APIKeyEnv)
	}
	return creds, nil
}

// ReadLines returns the non-blank, trimmed lines of a file.
// Lines starting with '#' are comments.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", utils.ErrFilesystem, path, err)
	}
	return lines, nil
}

// CollectSeeds merges the configured seed list with the seeds file, if any.
// Duplicates are kept; the crawler's visited set collapses them.
func (c *AppConfig) CollectSeeds(extraFile string) ([]string, error) {
	seeds := append([]string(nil), c.Seeds...)
	for _, path := range []string{c.SeedsFile, extraFile} {
		if path == "" {
			continue
		}
		lines, err := ReadLines(path)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, lines...)
	}
	return seeds, nil
}
