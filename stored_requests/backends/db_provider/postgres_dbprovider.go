package db_provider

import (
	"bytes"
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/prebid/stored-responses/config"
)

type PostgresDbProvider struct {
	cfg config.DatabaseConnection
	db  *sql.DB
}

// NewPostgresDbProviderWithDB wraps an already opened connection.
func NewPostgresDbProviderWithDB(cfg config.DatabaseConnection, db *sql.DB) *PostgresDbProvider {
	return &PostgresDbProvider{cfg: cfg, db: db}
}

func (provider *PostgresDbProvider) Config() config.DatabaseConnection {
	return provider.cfg
}

func (provider *PostgresDbProvider) Open() error {
	connStr, err := provider.ConnString()
	if err != nil {
		return err
	}

	db, err := sql.Open(provider.cfg.Driver, connStr)
	if err != nil {
		return err
	}

	provider.db = db
	return nil
}

func (provider *PostgresDbProvider) Close() error {
	if provider.db != nil {
		db := provider.db
		provider.db = nil
		return db.Close()
	}

	return nil
}

func (provider *PostgresDbProvider) Ping() error {
	return provider.db.Ping()
}

// ConnString builds a postgresql:// URL. sslmode defaults to disable unless the
// configured query string sets it.
func (provider *PostgresDbProvider) ConnString() (string, error) {
	buffer := bytes.NewBuffer(nil)
	buffer.WriteString("postgresql://")

	if provider.cfg.Username != "" {
		buffer.WriteString(provider.cfg.Username)
		if provider.cfg.Password != "" {
			buffer.WriteString(":")
			buffer.WriteString(url.QueryEscape(provider.cfg.Password))
		}
		buffer.WriteString("@")
	}

	buffer.WriteString(provider.cfg.Host)

	if provider.cfg.Port > 0 {
		buffer.WriteString(":")
		buffer.WriteString(strconv.Itoa(provider.cfg.Port))
	}

	if provider.cfg.Database != "" {
		buffer.WriteString("/")
		buffer.WriteString(provider.cfg.Database)
	}

	buffer.WriteString("?")
	if !strings.Contains(provider.cfg.QueryString, "sslmode=") {
		buffer.WriteString("sslmode=disable")
		if provider.cfg.QueryString != "" {
			buffer.WriteString("&")
		}
	}
	buffer.WriteString(provider.cfg.QueryString)

	return buffer.String(), nil
}

func (provider *PostgresDbProvider) PrepareQuery(template string, params ...QueryParam) (query string, args []interface{}) {
	query = template
	args = []interface{}{}

	for _, param := range params {
		switch v := param.Value.(type) {
		case []interface{}:
			idListStr := provider.createIdList(len(args), len(v))
			args = append(args, v...)
			query = strings.Replace(query, "$"+param.Name, idListStr, -1)
		default:
			args = append(args, param.Value)
			query = strings.Replace(query, "$"+param.Name, "$"+strconv.Itoa(len(args)), -1)
		}
	}
	return
}

func (provider *PostgresDbProvider) QueryContext(ctx context.Context, template string, params ...QueryParam) (*sql.Rows, error) {
	query, args := provider.PrepareQuery(template, params...)
	return provider.db.QueryContext(ctx, query, args...)
}

func (provider *PostgresDbProvider) createIdList(numSoFar int, numArgs int) string {
	// "()" is illegal in Postgres. `id IN (NULL)` is valid for every column type and matches nothing.
	if numArgs == 0 {
		return "(NULL)"
	}

	final := bytes.NewBuffer(make([]byte, 0, 2+4*numArgs))
	final.WriteString("(")
	for i := numSoFar + 1; i < numSoFar+numArgs; i++ {
		final.WriteString("$")
		final.WriteString(strconv.Itoa(i))
		final.WriteString(", ")
	}
	final.WriteString("$")
	final.WriteString(strconv.Itoa(numSoFar + numArgs))
	final.WriteString(")")

	return final.String()
}
