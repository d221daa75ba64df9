package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Needs to be imported for Postgres driver

	"github.com/datamast/essync/internal/config"
	"github.com/datamast/essync/internal/docstore"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// tableNamePattern limits table references to plain or schema-qualified
// identifiers, since the table name is interpolated into the query text.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// postgresProvider reads canonical documents from a PostgreSQL table. Rows
// are rendered to JSON server-side, so any table shape becomes a document
// without per-column mapping.
type postgresProvider struct {
	db     *sql.DB
	table  string
	source string
}

var _ Provider = (*postgresProvider)(nil)

// NewPostgresProvider opens a connection pool to the canonical documents
// table and verifies connectivity before returning.
func NewPostgresProvider(cfg *config.PostgresSourceConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres configuration is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("postgres host is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("postgres port is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("postgres user is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("postgres database is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("postgres table is required")
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("postgres table name is not a valid identifier: %q", cfg.Table)
	}

	// Set defaults for optional fields
	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = defaultMaxOpenConns
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = defaultMaxIdleConns
	}

	connMaxLifetime := defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid connection max lifetime: %w", err)
		}
		connMaxLifetime = duration
	}

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database connection: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(int(maxOpenConns))
	sqlDB.SetMaxIdleConns(int(maxIdleConns))
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		if closeErr := sqlDB.Close(); closeErr != nil {
			slog.Error("Failed to close source database connection after ping failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to ping source database: %w", err)
	}

	slog.Info("Source database connection established",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "table", cfg.Table)

	return &postgresProvider{
		db:     sqlDB,
		table:  cfg.Table,
		source: fmt.Sprintf("postgres:%s:%d/%s/%s", cfg.Host, cfg.Port, cfg.Database, cfg.Table),
	}, nil
}

// Fetch implements Provider.Fetch. Each row is converted to a document by the
// server's row_to_json, so the decoded value shapes match what the store
// itself returns for the same document.
func (p *postgresProvider) Fetch(ctx context.Context, sinceID int64) ([]docstore.Document, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if sinceID > 0 {
		query := fmt.Sprintf("SELECT row_to_json(t) FROM %s AS t WHERE t.id > $1 ORDER BY t.id", p.table)
		rows, err = p.db.QueryContext(ctx, query, sinceID)
	} else {
		query := fmt.Sprintf("SELECT row_to_json(t) FROM %s AS t ORDER BY t.id", p.table)
		rows, err = p.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source table %s: %w", p.table, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}

		var doc docstore.Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode source row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source rows: %w", err)
	}

	return docs, nil
}

// Source implements Provider.Source.
func (p *postgresProvider) Source() string {
	return p.source
}

// Close implements Provider.Close.
func (p *postgresProvider) Close() error {
	if p.db != nil {
		slog.Info("Closing source database connection")
		return p.db.Close()
	}
	return nil
}
