// Package config provides configuration loading and management for the sync service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datamast/essync/internal/telemetry"
)

const (
	// SourceTypeFile is the type for canonical documents stored in local files
	SourceTypeFile = "file"

	// SourceTypePostgres is the type for canonical documents fetched from a PostgreSQL database
	SourceTypePostgres = "postgres"
)

// EnvPrefix is the prefix for environment variables overriding configuration
const EnvPrefix = "ESSYNC"

const (
	// StorePasswordEnv is the environment variable consulted for the document
	// store password when no password file is configured
	StorePasswordEnv = "ESSYNC_STORE_PASSWORD"

	// SourcePasswordEnv is the environment variable consulted for the source
	// database password when no password file is configured
	SourcePasswordEnv = "ESSYNC_SOURCE_PASSWORD"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Store holds the document store connection settings
	Store *StoreConfig `yaml:"store"`

	// Source holds the canonical document source settings
	Source *SourceConfig `yaml:"source"`

	// Reconcile holds the reconciliation run settings
	Reconcile *ReconcileConfig `yaml:"reconcile"`

	// Server holds the admin API settings
	Server *ServerConfig `yaml:"server,omitempty"`

	// Telemetry holds the OpenTelemetry settings
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// StoreConfig defines document store connection settings
type StoreConfig struct {
	// Addresses are the store node URLs, e.g. "http://localhost:9200"
	Addresses []string `yaml:"addresses"`

	// Username is the basic-auth username. Leave empty for unauthenticated
	// clusters.
	Username string `yaml:"username,omitempty"`

	// PasswordFile is the path to a file containing the store password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// GetPassword returns the store password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the ESSYNC_STORE_PASSWORD environment variable
//
// An empty password is only an error when a username is configured.
func (s *StoreConfig) GetPassword() (string, error) {
	if s.PasswordFile != "" {
		password, err := readPasswordFile(s.PasswordFile)
		if err != nil {
			return "", err
		}
		return password, nil
	}

	if envPassword := os.Getenv(StorePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	if s.Username == "" {
		return "", nil
	}

	return "", fmt.Errorf(
		"no store password configured: set passwordFile or %s environment variable", StorePasswordEnv,
	)
}

// SourceConfig defines where canonical documents are read from
type SourceConfig struct {
	// Type names the source kind (file or postgres). When empty it is
	// inferred from which section is present.
	Type string `yaml:"type,omitempty"`

	// Type-specific configurations (only one should be set)
	File     *FileSourceConfig     `yaml:"file,omitempty"`
	Postgres *PostgresSourceConfig `yaml:"postgres,omitempty"`
}

// GetType returns the configured type, inferring it from the present section
// when not set explicitly
func (s *SourceConfig) GetType() string {
	if s.Type != "" {
		return s.Type
	}
	if s.File != nil {
		return SourceTypeFile
	}
	if s.Postgres != nil {
		return SourceTypePostgres
	}
	return ""
}

// FileSourceConfig defines local file source configuration
type FileSourceConfig struct {
	// Path is the path to a JSON or YAML document file, or a directory of
	// such files, on the local filesystem
	Path string `yaml:"path"`
}

// PostgresSourceConfig defines PostgreSQL source connection settings
type PostgresSourceConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// Table is the table holding canonical documents
	Table string `yaml:"table"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the source database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the ESSYNC_SOURCE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *PostgresSourceConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		return readPasswordFile(d.PasswordFile)
	}

	if envPassword := os.Getenv(SourcePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no source database password configured: set passwordFile or %s environment variable", SourcePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *PostgresSourceConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	// URL-escape the password to handle special characters
	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// ReconcileConfig defines reconciliation run settings
type ReconcileConfig struct {
	// Index is the document store index reconciled into
	Index string `yaml:"index"`

	// LatestField is the document field the latest-value cursor reads.
	// Empty disables the value cursor.
	LatestField string `yaml:"latestField,omitempty"`

	// Concurrency is the number of documents synced in parallel
	// Defaults to 4 if not specified
	Concurrency int `yaml:"concurrency,omitempty"`

	// MaxAttempts is the per-document attempt budget for retryable store
	// faults. Defaults to 5 if not specified.
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	// CheckpointPath is the file recording the last completed run.
	// Empty disables checkpointing.
	CheckpointPath string `yaml:"checkpointPath,omitempty"`

	// Interval is how often the serve loop reconciles (e.g., "30m").
	// Empty means reconcile runs only on demand.
	Interval string `yaml:"interval,omitempty"`
}

const (
	defaultConcurrency = 4
	defaultMaxAttempts = 5
)

// GetConcurrency returns the concurrency, using default if not specified
func (r *ReconcileConfig) GetConcurrency() int {
	if r.Concurrency <= 0 {
		return defaultConcurrency
	}
	return r.Concurrency
}

// GetMaxAttempts returns the attempt budget, using default if not specified
func (r *ReconcileConfig) GetMaxAttempts() int {
	if r.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return r.MaxAttempts
}

// GetInterval parses the reconcile interval. A zero duration means on-demand
// reconciliation only.
func (r *ReconcileConfig) GetInterval() (time.Duration, error) {
	if r.Interval == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Interval)
}

// ServerConfig defines admin API settings
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080"
	Address string `yaml:"address,omitempty"`
}

// GetAddress returns the listen address, using ":8080" if not specified
func (s *ServerConfig) GetAddress() string {
	if s == nil || s.Address == "" {
		return ":8080"
	}
	return s.Address
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateStoreConfig(c.Store); err != nil {
		return err
	}

	if err := validateSourceConfig(c.Source); err != nil {
		return err
	}

	if err := validateReconcileConfig(c.Reconcile); err != nil {
		return err
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

// validateStoreConfig validates the document store configuration
func validateStoreConfig(store *StoreConfig) error {
	if store == nil {
		return fmt.Errorf("store configuration is required")
	}

	if len(store.Addresses) == 0 {
		return fmt.Errorf("store: at least one address is required")
	}

	for i, addr := range store.Addresses {
		u, err := url.Parse(addr)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("store: address[%d] is not a valid URL: %s", i, addr)
		}
	}

	return nil
}

// validateSourceConfig validates the document source configuration
func validateSourceConfig(source *SourceConfig) error {
	if source == nil {
		return fmt.Errorf("source configuration is required")
	}

	// Validate exactly one source type is configured
	configCount := 0
	if source.File != nil {
		configCount++
	}
	if source.Postgres != nil {
		configCount++
	}

	if configCount == 0 {
		return fmt.Errorf("source: one of file or postgres configuration must be specified")
	}
	if configCount > 1 {
		return fmt.Errorf("source: only one of file or postgres configuration may be specified")
	}

	// An explicit type must name the section that is present
	if source.Type != "" && source.Type != source.GetTypeFromSection() {
		return fmt.Errorf("source: type %q does not match the configured section", source.Type)
	}

	if source.File != nil {
		if source.File.Path == "" {
			return fmt.Errorf("source: file.path is required")
		}
	}

	if source.Postgres != nil {
		return validatePostgresSourceConfig(source.Postgres)
	}

	return nil
}

// GetTypeFromSection infers the source type from the present section alone
func (s *SourceConfig) GetTypeFromSection() string {
	if s.File != nil {
		return SourceTypeFile
	}
	if s.Postgres != nil {
		return SourceTypePostgres
	}
	return ""
}

// validatePostgresSourceConfig validates PostgreSQL source settings
func validatePostgresSourceConfig(pg *PostgresSourceConfig) error {
	if pg.Host == "" {
		return fmt.Errorf("source: postgres.host is required")
	}
	if pg.Port == 0 {
		return fmt.Errorf("source: postgres.port is required")
	}
	if pg.User == "" {
		return fmt.Errorf("source: postgres.user is required")
	}
	if pg.Database == "" {
		return fmt.Errorf("source: postgres.database is required")
	}
	if pg.Table == "" {
		return fmt.Errorf("source: postgres.table is required")
	}
	if pg.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(pg.ConnMaxLifetime); err != nil {
			return fmt.Errorf("source: postgres.connMaxLifetime must be a valid duration (e.g., '30m', '1h'): %w", err)
		}
	}
	return nil
}

// validateReconcileConfig validates reconciliation settings
func validateReconcileConfig(rec *ReconcileConfig) error {
	if rec == nil {
		return fmt.Errorf("reconcile configuration is required")
	}

	if rec.Index == "" {
		return fmt.Errorf("reconcile: index is required")
	}

	if rec.Interval != "" {
		if _, err := time.ParseDuration(rec.Interval); err != nil {
			return fmt.Errorf("reconcile: interval must be a valid duration (e.g., '30m', '1h'): %w", err)
		}
	}

	if rec.Concurrency < 0 {
		return fmt.Errorf("reconcile: concurrency cannot be negative")
	}

	if rec.MaxAttempts < 0 {
		return fmt.Errorf("reconcile: maxAttempts cannot be negative")
	}

	return nil
}

// readPasswordFile reads a password file and trims surrounding whitespace
func readPasswordFile(path string) (string, error) {
	// Use filepath.Clean to prevent path traversal attacks
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to read password from file %s: %w", path, err)
	}

	// Trim whitespace (including newlines) from file content
	return strings.TrimSpace(string(data)), nil
}
