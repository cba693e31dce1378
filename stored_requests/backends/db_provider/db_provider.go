package db_provider

import (
	"context"
	"database/sql"

	"github.com/golang/glog"
	"github.com/prebid/stored-responses/config"
)

type DbProvider interface {
	Config() config.DatabaseConnection
	ConnString() (string, error)
	Open() error
	Close() error
	Ping() error
	PrepareQuery(template string, params ...QueryParam) (query string, args []interface{})
	QueryContext(ctx context.Context, template string, params ...QueryParam) (*sql.Rows, error)
}

// NewDbProvider opens and pings the configured database. Startup fails if it can't be reached.
func NewDbProvider(cfg config.DatabaseConnection) DbProvider {
	var provider DbProvider

	switch cfg.Driver {
	case "postgres":
		provider = &PostgresDbProvider{cfg: cfg}
	default:
		glog.Fatalf("Unsupported database driver %s", cfg.Driver)
		return nil
	}

	if err := provider.Open(); err != nil {
		glog.Fatalf("Failed to open stored response database connection: %v", err)
	}
	if err := provider.Ping(); err != nil {
		glog.Fatalf("Failed to ping stored response database: %v", err)
	}

	return provider
}

// QueryParam is substituted for $Name in a query template. A []interface{} Value
// expands to a parenthesized list with one placeholder per element.
type QueryParam struct {
	Name  string
	Value interface{}
}
