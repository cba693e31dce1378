package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/prebid/stored-responses/stored_requests/events"
	"golang.org/x/net/context/ctxhttp"
)

// NewHTTPEvents makes an EventProducer which creates events by pinging an external HTTP API
// for updates periodically.
//
// It expects the following endpoint to exist remotely:
//
// GET {endpoint}
//
//	-- Returns all the known Stored Responses.
//
// GET {endpoint}?last-modified={timestamp}
//
//	-- Returns the Stored Responses which have been updated since the last timestamp.
//	   This timestamp will be sent in the rfc3339 format, using UTC and no timezone shift.
//
// The responses should be JSON like this:
//
//	{
//	  "responses": {
//	    "resp1": [ ... seatbids ... ],
//	    "resp2": { "deleted": true }
//	  }
//	}
//
// A { "deleted": true } payload turns into an invalidation of that id.
func NewHTTPEvents(client *http.Client, endpoint string, timeout time.Duration, refreshRate time.Duration, clk clock.Clock) *HTTPEvents {
	e := &HTTPEvents{
		client:        client,
		clock:         clk,
		endpoint:      endpoint,
		timeout:       timeout,
		saves:         make(chan events.Save, 1),
		invalidations: make(chan events.Invalidation, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	glog.Infof("Loading HTTP cache from GET %s", endpoint)
	e.fetchAll()

	go e.refresh(clk.Ticker(refreshRate))
	return e
}

type HTTPEvents struct {
	client        *http.Client
	clock         clock.Clock
	endpoint      string
	timeout       time.Duration
	lastUpdate    time.Time
	saves         chan events.Save
	invalidations chan events.Invalidation
	stop          chan struct{}
	done          chan struct{}
}

func (e *HTTPEvents) fetchAll() {
	thisTimestamp := e.clock.Now().UTC()
	resp, err := e.fetch(e.endpoint)
	if err != nil {
		glog.Errorf("Failed call: GET %s for Stored Responses: %v", e.endpoint, err)
		return
	}
	e.lastUpdate = thisTimestamp
	// The cache starts empty, so deleted ids need no invalidation.
	saves, _ := splitDeletes(resp.Responses)
	if len(saves) > 0 {
		e.saves <- events.Save{Responses: saves}
	}
}

func (e *HTTPEvents) refresh(ticker *clock.Ticker) {
	defer close(e.done)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			thisTimestamp := e.clock.Now().UTC()
			endpoint := e.withLastModified(e.lastUpdate)
			resp, err := e.fetch(endpoint)
			if err != nil {
				glog.Errorf("Failed call: GET %s for Stored Responses: %v", endpoint, err)
				continue
			}

			saves, invalidations := splitDeletes(resp.Responses)
			if len(saves) > 0 {
				select {
				case e.saves <- events.Save{Responses: saves}:
				case <-e.stop:
					return
				}
			}
			if len(invalidations) > 0 {
				select {
				case e.invalidations <- events.Invalidation{Responses: invalidations}:
				case <-e.stop:
					return
				}
			}
			e.lastUpdate = thisTimestamp
		case <-e.stop:
			return
		}
	}
}

// Stop ends the refresh loop and waits for it to return.
func (e *HTTPEvents) Stop() {
	close(e.stop)
	<-e.done
}

func (e *HTTPEvents) withLastModified(since time.Time) string {
	separator := "?"
	if strings.Contains(e.endpoint, "?") {
		separator = "&"
	}
	return e.endpoint + separator + "last-modified=" + url.QueryEscape(since.Format(time.RFC3339))
}

func (e *HTTPEvents) fetch(endpoint string) (*responseContract, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	httpResp, err := ctxhttp.Get(ctx, e.client, endpoint)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status %d", httpResp.StatusCode)
	}

	var resp responseContract
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func splitDeletes(responses map[string]json.RawMessage) (map[string]json.RawMessage, []string) {
	saves := make(map[string]json.RawMessage, len(responses))
	var invalidations []string
	for id, payload := range responses {
		if deleted, err := jsonparser.GetBoolean(payload, "deleted"); err == nil && deleted {
			invalidations = append(invalidations, id)
			continue
		}
		saves[id] = payload
	}
	return saves, invalidations
}

func (e *HTTPEvents) Saves() <-chan events.Save {
	return e.saves
}

func (e *HTTPEvents) Invalidations() <-chan events.Invalidation {
	return e.invalidations
}

type responseContract struct {
	Responses map[string]json.RawMessage `json:"responses"`
}
