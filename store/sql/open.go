package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	serviceName string
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return c.serviceName }

// Open connects to the configured database and registers the inbox
// migrations for its dialect. Callers run client.Migrate when appropriate.
func Open(ctx context.Context, cfg core.Config) (*persistence.Client, error) {
	driver := strings.TrimSpace(cfg.Database.Driver)
	if driver == "" {
		driver = "sqlite3"
	}
	dialectName, err := migrations.DialectForDriver(driver)
	if err != nil {
		return nil, err
	}

	var dialect schema.Dialect
	switch dialectName {
	case migrations.DialectPostgres:
		driver = "postgres"
		dialect = pgdialect.New()
	default:
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if dialectName == migrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver:      driver,
		server:      cfg.Database.DSN,
		debug:       cfg.Database.Debug,
		serviceName: cfg.ServiceName,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(dialectName))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
