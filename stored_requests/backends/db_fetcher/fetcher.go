package db_fetcher

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/golang/glog"
	"github.com/lib/pq"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/stored_requests"
	"github.com/prebid/stored-responses/stored_requests/backends/db_provider"
)

// NewFetcher returns a Fetcher which runs queryTemplate against the provider.
// The template must select (id, data) rows and contain $ID_LIST.
func NewFetcher(provider db_provider.DbProvider, queryTemplate string) stored_requests.Fetcher {
	if provider == nil {
		glog.Fatalf("The Database Stored Response Fetcher requires a database connection. Please report this as a bug.")
	}
	if queryTemplate == "" {
		glog.Fatalf("The Database Stored Response Fetcher requires a query template. Please report this as a bug.")
	}
	return &dbFetcher{
		provider:      provider,
		queryTemplate: queryTemplate,
	}
}

// dbFetcher fetches Stored Responses from a database. This should be instantiated through the NewFetcher() function.
type dbFetcher struct {
	provider      db_provider.DbProvider
	queryTemplate string
}

func (fetcher *dbFetcher) FetchResponses(ctx context.Context, ids []string) (map[string]json.RawMessage, []error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idInterfaces := make([]interface{}, len(ids))
	for i, id := range ids {
		idInterfaces[i] = id
	}
	idListParam := db_provider.QueryParam{Name: "ID_LIST", Value: idInterfaces}

	rows, err := fetcher.provider.QueryContext(ctx, fetcher.queryTemplate, idListParam)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, []error{&errortypes.Timeout{Message: "Stored response database query timed out"}}
		}
		if isBadInput(err) {
			return nil, stored_requests.NewNotFoundErrors(ids, nil)
		}
		glog.Errorf("Error reading from Stored Response DB: %s", err.Error())
		return nil, []error{err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			glog.Errorf("error closing DB connection: %v", err)
		}
	}()

	data := make(map[string]json.RawMessage, len(ids))
	for rows.Next() {
		var id string
		var payload []byte

		if err := rows.Scan(&id, &payload); err != nil {
			return nil, []error{err}
		}
		data[id] = payload
	}

	if rows.Err() != nil {
		return nil, []error{rows.Err()}
	}

	return data, stored_requests.NewNotFoundErrors(ids, data)
}

// Returns true if the Postgres error signifies some sort of bad user input, and false otherwise.
//
// These errors are documented here: https://www.postgresql.org/docs/9.3/static/errcodes-appendix.html
func isBadInput(err error) bool {
	// A non-UUID passed into a query for a UUID column fails with 22P02. The id can't exist, so it's
	// reported as not found rather than as a failed lookup.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == "22P02" {
		return true
	}

	return false
}
