package stored_requests

import (
	"context"
	"encoding/json"
)

// MultiFetcher is a Fetcher composed of multiple sub-Fetchers that are all polled for results.
// Each fetcher is only asked for the IDs that the fetchers before it did not find.
type MultiFetcher []Fetcher

// FetchResponses implements the Fetcher interface for MultiFetcher
func (mf MultiFetcher) FetchResponses(ctx context.Context, ids []string) (data map[string]json.RawMessage, errs []error) {
	data = make(map[string]json.RawMessage, len(ids))
	remainingIDs := ids

	for _, f := range mf {
		if len(remainingIDs) == 0 {
			break
		}
		thisData, thisErrs := f.FetchResponses(ctx, remainingIDs)
		for id, payload := range thisData {
			data[id] = payload
		}
		errs = appendRealErrors(errs, thisErrs)
		remainingIDs = findLeftovers(remainingIDs, data)
	}

	// Only the fetchers that were asked last know that an id is missing everywhere.
	errs = append(errs, NewNotFoundErrors(remainingIDs, nil)...)
	return data, errs
}

func appendRealErrors(errs []error, newErrs []error) []error {
	for _, err := range newErrs {
		if _, ok := err.(NotFoundError); !ok {
			errs = append(errs, err)
		}
	}
	return errs
}
