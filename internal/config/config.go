// Package config resolves vault settings from command-line flags,
// environment variables, and an optional .env file, in that order.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pixvaultapp/pixvault-server/internal/validation"
)

// Config is the fully resolved configuration for one process.
type Config struct {
	App         AppConfig
	Logger      LoggerConfig
	Data        DataConfig
	Inbox       InboxConfig
	Blob        BlobConfig
	Search      SearchConfig
	Derivatives DerivativesConfig
	Tags        TagsConfig
}

// AppConfig names the runtime environment the process runs in.
type AppConfig struct {
	Environment string `validate:"required,oneof=development staging production"`
}

// LoggerConfig controls log verbosity and output format.
type LoggerConfig struct {
	Level string `validate:"required,oneof=debug info warn error"`
	// Format forces the output format; empty picks by environment.
	Format string `validate:"omitempty,oneof=json pretty"`
}

// DataConfig holds the root directory for locally persisted state: the
// SQLite database, on-disk search indexes, and the inbox journal.
type DataConfig struct {
	BasePath string `validate:"required"`
}

// InboxConfig holds drop-folder ingestion configuration.
type InboxConfig struct {
	// Path is the watched drop folder. Empty disables the watcher.
	Path string
	// SettleDelay is how long a file must stay quiet before ingestion
	// picks it up. Exports and network copies arrive in bursts of
	// writes (default: 2s).
	SettleDelay time.Duration `validate:"gte=0"`
	// Workers is the number of concurrent ingestion workers (default: 4).
	Workers int `validate:"gte=1"`
}

// BlobConfig holds blob storage configuration.
type BlobConfig struct {
	// Backend selects where originals, derivatives, and sidecars live.
	Backend string `validate:"required,oneof=fs s3"`
	// FSPath is the blob directory for the fs backend (default: {data}/blobs).
	FSPath string `validate:"required_if=Backend fs"`
	// S3Endpoint overrides the AWS endpoint for S3-compatible stores
	// like MinIO. Empty uses the regional AWS endpoint.
	S3Endpoint       string
	S3Region         string `validate:"required_if=Backend s3"`
	S3Bucket         string `validate:"required_if=Backend s3"`
	S3AccessKey      string
	S3SecretKey      string
	S3ForcePathStyle bool
}

// SearchConfig holds search index configuration.
type SearchConfig struct {
	// Backend selects the index implementation (default: bleve).
	Backend string `validate:"required,oneof=bleve meilisearch"`
	// BlevePath is the on-disk index directory for the bleve backend
	// (default: {data}/index).
	BlevePath   string `validate:"required_if=Backend bleve"`
	MeiliHost   string `validate:"required_if=Backend meilisearch,omitempty,url"`
	MeiliAPIKey string
}

// DerivativesConfig holds lossless derivative configuration.
type DerivativesConfig struct {
	// Lossless enables writing a lossless re-encode next to each
	// original (default: true).
	Lossless bool
	// Format is the derivative encoding (default: webp).
	Format string `validate:"required,oneof=webp avif png"`
	// Strict fails the whole ingestion when a derivative cannot be
	// produced. When false the failure is logged and the original is
	// still ingested.
	Strict bool
}

// TagsConfig holds tag evaluation configuration.
type TagsConfig struct {
	// UsageCacheTTL bounds how stale cached tag usage counts may be
	// (default: 5m).
	UsageCacheTTL time.Duration `validate:"gt=0"`
}

// flagValues carries raw flag strings into the precedence cascade.
// CLI tools with their own flag handling pass the zero value.
type flagValues struct {
	env              string
	logLevel         string
	logFormat        string
	dataPath         string
	inboxPath        string
	settleDelay      string
	inboxWorkers     string
	blobBackend      string
	blobPath         string
	s3Endpoint       string
	s3Region         string
	s3Bucket         string
	s3AccessKey      string
	s3SecretKey      string
	s3ForcePathStyle string
	searchBackend    string
	blevePath        string
	meiliHost        string
	meiliAPIKey      string
	lossless         string
	losslessFormat   string
	strict           string
	tagCacheTTL      string
}

// Load resolves the daemon's configuration. Command-line flags beat
// environment variables, which beat the .env file, which beats the
// built-in defaults.
func Load() (*Config, error) {
	var fv flagValues
	flag.StringVar(&fv.env, "env", "", "Environment (development, staging, production)")
	flag.StringVar(&fv.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&fv.logFormat, "log-format", "", "Log output format (json, pretty; default: by environment)")
	flag.StringVar(&fv.dataPath, "data-path", "", "Base path for local state (database, indexes, journal)")
	flag.StringVar(&fv.inboxPath, "inbox-path", "", "Drop folder to watch for new images (empty disables)")
	flag.StringVar(&fv.settleDelay, "settle-delay", "", "Quiet period before ingesting a dropped file (default: 2s)")
	flag.StringVar(&fv.inboxWorkers, "inbox-workers", "", "Concurrent ingestion workers (default: 4)")

	flag.StringVar(&fv.blobBackend, "blob-backend", "", "Blob storage backend (fs, s3)")
	flag.StringVar(&fv.blobPath, "blob-path", "", "Blob directory for the fs backend")
	flag.StringVar(&fv.s3Endpoint, "s3-endpoint", "", "S3 endpoint override for S3-compatible stores")
	flag.StringVar(&fv.s3Region, "s3-region", "", "S3 region")
	flag.StringVar(&fv.s3Bucket, "s3-bucket", "", "S3 bucket")
	flag.StringVar(&fv.s3AccessKey, "s3-access-key", "", "S3 access key ID")
	flag.StringVar(&fv.s3SecretKey, "s3-secret-key", "", "S3 secret access key")
	flag.StringVar(&fv.s3ForcePathStyle, "s3-force-path-style", "", "Use path-style S3 addressing (default: true when an endpoint is set)")

	flag.StringVar(&fv.searchBackend, "search-backend", "", "Search backend (bleve, meilisearch)")
	flag.StringVar(&fv.blevePath, "bleve-path", "", "Index directory for the bleve backend")
	flag.StringVar(&fv.meiliHost, "meili-host", "", "Meilisearch host URL")
	flag.StringVar(&fv.meiliAPIKey, "meili-api-key", "", "Meilisearch API key")

	flag.StringVar(&fv.lossless, "lossless", "", "Write lossless derivatives (default: true)")
	flag.StringVar(&fv.losslessFormat, "lossless-format", "", "Derivative format (webp, avif, png)")
	flag.StringVar(&fv.strict, "strict-derivatives", "", "Fail ingestion when a derivative cannot be produced (default: false)")
	flag.StringVar(&fv.tagCacheTTL, "tag-cache-ttl", "", "Tag usage cache lifetime (default: 5m)")

	envFile := flag.String("env-file", ".env", "Location of the .env file")

	flag.Parse()

	// A missing .env file is not an error; the defaults cover it.
	_ = loadEnvFile(*envFile)

	return build(fv)
}

// FromEnv loads configuration from environment variables, the given
// .env file, and defaults. CLI tools that manage their own flags use
// this instead of Load. An empty envFile skips .env loading.
func FromEnv(envFile string) (*Config, error) {
	if envFile != "" {
		_ = loadEnvFile(envFile)
	}
	return build(flagValues{})
}

// build applies the flag > env > default cascade and validates.
func build(fv flagValues) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(fv.env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(getConfigValue(fv.logLevel, "LOG_LEVEL", "info")),
			Format: strings.ToLower(getConfigValue(fv.logFormat, "LOG_FORMAT", "")),
		},
		Data: DataConfig{
			BasePath: getConfigValue(fv.dataPath, "DATA_PATH", ""),
		},
		Inbox: InboxConfig{
			Path:    getConfigValue(fv.inboxPath, "INBOX_PATH", ""),
			Workers: getIntConfigValue(fv.inboxWorkers, "INBOX_WORKERS", 4),
		},
		Blob: BlobConfig{
			Backend:     getConfigValue(fv.blobBackend, "BLOB_BACKEND", "fs"),
			FSPath:      getConfigValue(fv.blobPath, "BLOB_FS_PATH", ""),
			S3Endpoint:  getConfigValue(fv.s3Endpoint, "S3_ENDPOINT", ""),
			S3Region:    getConfigValue(fv.s3Region, "S3_REGION", ""),
			S3Bucket:    getConfigValue(fv.s3Bucket, "S3_BUCKET", ""),
			S3AccessKey: getConfigValue(fv.s3AccessKey, "S3_ACCESS_KEY", ""),
			S3SecretKey: getConfigValue(fv.s3SecretKey, "S3_SECRET_KEY", ""),
		},
		Search: SearchConfig{
			Backend:     getConfigValue(fv.searchBackend, "SEARCH_BACKEND", "bleve"),
			BlevePath:   getConfigValue(fv.blevePath, "BLEVE_PATH", ""),
			MeiliHost:   getConfigValue(fv.meiliHost, "MEILI_HOST", "http://localhost:7700"),
			MeiliAPIKey: getConfigValue(fv.meiliAPIKey, "MEILI_API_KEY", ""),
		},
		Derivatives: DerivativesConfig{
			Lossless: getBoolConfigValue(fv.lossless, "LOSSLESS_ENABLED", true),
			Format:   getConfigValue(fv.losslessFormat, "LOSSLESS_FORMAT", "webp"),
			Strict:   getBoolConfigValue(fv.strict, "STRICT_DERIVATIVES", false),
		},
	}

	// Path-style addressing is what MinIO and most S3-compatible
	// stores expect, so it defaults on whenever an endpoint is set.
	cfg.Blob.S3ForcePathStyle = getBoolConfigValue(
		fv.s3ForcePathStyle, "S3_FORCE_PATH_STYLE", cfg.Blob.S3Endpoint != "")

	// Parse durations.
	settleDelayStr := getConfigValue(fv.settleDelay, "INBOX_SETTLE_DELAY", "2s")
	settleDelay, err := time.ParseDuration(settleDelayStr)
	if err != nil {
		return nil, fmt.Errorf("invalid settle delay %q: %w", settleDelayStr, err)
	}
	cfg.Inbox.SettleDelay = settleDelay

	cacheTTLStr := getConfigValue(fv.tagCacheTTL, "TAG_CACHE_TTL", "5m")
	cacheTTL, err := time.ParseDuration(cacheTTLStr)
	if err != nil {
		return nil, fmt.Errorf("invalid tag cache TTL %q: %w", cacheTTLStr, err)
	}
	cfg.Tags.UsageCacheTTL = cacheTTL

	// Expand and validate the data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Expand the inbox path (empty stays empty, disabling the watcher).
	if err := cfg.expandInboxPath(); err != nil {
		return nil, fmt.Errorf("invalid inbox path: %w", err)
	}

	// Expand backend paths (default under the data path).
	if err := cfg.expandBlobPath(); err != nil {
		return nil, fmt.Errorf("invalid blob path: %w", err)
	}
	if err := cfg.expandBlevePath(); err != nil {
		return nil, fmt.Errorf("invalid bleve path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate applies the struct-tag rules and reports the violations.
func (c *Config) Validate() error {
	return validation.New().Validate(c)
}

// DatabasePath is the SQLite database file under the data path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.BasePath, "pixvault.db")
}

// JournalPath is the inbox journal directory under the data path.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Data.BasePath, "journal")
}

// expandPath resolves a user-supplied path to a clean absolute one,
// falling back to defaultPath when the input is empty.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Relative paths anchor to the working directory.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath resolves Data.BasePath, defaulting to ~/PixVault/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "PixVault", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// expandInboxPath resolves Inbox.Path. Empty stays empty, which keeps
// the watcher disabled.
func (c *Config) expandInboxPath() error {
	if c.Inbox.Path == "" {
		return nil
	}

	expanded, err := expandPath(c.Inbox.Path, "")
	if err != nil {
		return err
	}
	c.Inbox.Path = expanded
	return nil
}

// expandBlobPath resolves Blob.FSPath, defaulting to {data}/blobs.
func (c *Config) expandBlobPath() error {
	defaultPath := filepath.Join(c.Data.BasePath, "blobs")

	expanded, err := expandPath(c.Blob.FSPath, defaultPath)
	if err != nil {
		return err
	}
	c.Blob.FSPath = expanded
	return nil
}

// expandBlevePath resolves Search.BlevePath, defaulting to {data}/index.
func (c *Config) expandBlevePath() error {
	defaultPath := filepath.Join(c.Data.BasePath, "index")

	expanded, err := expandPath(c.Search.BlevePath, defaultPath)
	if err != nil {
		return err
	}
	c.Search.BlevePath = expanded
	return nil
}

// getConfigValue picks the first non-empty of flag, env var, and default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue runs the same cascade for booleans. "true", "1",
// and "yes" count as true regardless of case; any other non-empty
// value is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue runs the same cascade for integers. Unparseable
// values fall back to the default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile reads KEY=value lines from a .env file into the process
// environment. Blank lines and # comments are skipped; single or
// double quotes around values are stripped.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- the .env path is meant to come from the operator
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed entry at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// The real environment wins over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
