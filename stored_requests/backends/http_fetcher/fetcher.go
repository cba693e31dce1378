package http_fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/stored_requests"
	"golang.org/x/net/context/ctxhttp"
)

// NewFetcher returns a Fetcher which uses the Client to pull data from the endpoint.
//
// This file expects the endpoint to satisfy the following API:
//
// GET {endpoint}?response-ids=["resp1","resp2","resp3"]
//
// The endpoint should return a payload like:
//
//	{
//	  "responses": {
//	    "resp1": [ ... seatbids for resp1 ... ],
//	    "resp2": [ ... seatbids for resp2 ... ],
//	    "resp3": null // If resp3 is not found
//	  }
//	}
func NewFetcher(client *http.Client, endpoint string) *HttpFetcher {
	// The endpoint may already carry a query string, in which case the ids are appended with "&".
	if _, err := url.Parse(endpoint); err != nil {
		glog.Fatalf(`Invalid endpoint "%s": %v`, endpoint, err)
	}
	glog.Infof("Making http_fetcher for endpoint %v", endpoint)

	urlPrefix := endpoint
	if strings.Contains(endpoint, "?") {
		urlPrefix = urlPrefix + "&"
	} else {
		urlPrefix = urlPrefix + "?"
	}

	return &HttpFetcher{
		client:   client,
		endpoint: urlPrefix,
	}
}

type HttpFetcher struct {
	client   *http.Client
	endpoint string
}

func (fetcher *HttpFetcher) FetchResponses(ctx context.Context, ids []string) (map[string]json.RawMessage, []error) {
	if len(ids) == 0 {
		return nil, nil
	}

	httpReq, err := buildRequest(fetcher.endpoint, ids)
	if err != nil {
		return nil, []error{err}
	}

	httpResp, err := ctxhttp.Do(ctx, fetcher.client, httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, []error{&errortypes.Timeout{Message: fmt.Sprintf("Stored response fetch via http timed out: %v", err)}}
		}
		return nil, []error{err}
	}
	defer httpResp.Body.Close()
	return unpackResponse(ids, httpResp)
}

func buildRequest(endpoint string, ids []string) (*http.Request, error) {
	idList, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return http.NewRequest("GET", endpoint+"response-ids="+url.QueryEscape(string(idList)), nil)
}

func unpackResponse(ids []string, resp *http.Response) (data map[string]json.RawMessage, errs []error) {
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		errs = append(errs, err)
		return
	}

	if resp.StatusCode != http.StatusOK {
		errs = append(errs, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Error fetching Stored Responses via HTTP. Response code was %d", resp.StatusCode),
		})
		return
	}

	var responseObj responseContract
	if err := json.Unmarshal(respBytes, &responseObj); err != nil {
		errs = append(errs, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Error parsing Stored Responses fetched via HTTP: %v", err),
		})
		return
	}

	data = make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if val, ok := responseObj.Responses[id]; ok && !bytes.Equal(val, []byte("null")) {
			data[id] = val
		}
	}
	errs = stored_requests.NewNotFoundErrors(ids, data)
	return
}

// responseContract is used to unmarshal the endpoint payload.
type responseContract struct {
	Responses map[string]json.RawMessage `json:"responses"`
}
