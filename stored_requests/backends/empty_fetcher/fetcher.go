package empty_fetcher

import (
	"context"
	"encoding/json"

	"github.com/prebid/stored-responses/stored_requests"
)

// EmptyFetcher is a nil-object which has no Stored Responses.
// If the server is configured to use this, then every stored response directive resolves to nothing.
type EmptyFetcher struct{}

func (fetcher EmptyFetcher) FetchResponses(ctx context.Context, ids []string) (data map[string]json.RawMessage, errs []error) {
	errs = make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, stored_requests.NotFoundError{
			ID:       id,
			DataType: "Response",
		})
	}
	return nil, errs
}
