package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prebid/stored-responses/stored_requests/events"
)

type eventsAPI struct {
	saves         chan events.Save
	invalidations chan events.Invalidation
}

// NewEventsAPI creates an EventProducer that generates cache events from HTTP requests.
// The returned httprouter.Handle must be registered on both POST (save) and DELETE (invalidate), e.g.:
//
//	apiEvents, apiEventsHandler := NewEventsAPI()
//	router.POST("/storedresponses", apiEventsHandler)
//	router.DELETE("/storedresponses", apiEventsHandler)
//	go events.SimpleEventListener().Listen(cache, apiEvents)
//
// POST bodies look like {"responses":{"id1":[...seatbids...]}} and DELETE bodies like
// {"responses":["id1","id2"]}.
//
// The returned HTTP endpoint should not be exposed on a public network without authentication
// as it allows direct writing to the cache via Save.
func NewEventsAPI() (events.EventProducer, httprouter.Handle) {
	api := &eventsAPI{
		invalidations: make(chan events.Invalidation),
		saves:         make(chan events.Save),
	}
	return api, httprouter.Handle(api.HandleEvent)
}

func (api *eventsAPI) HandleEvent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	switch r.Method {
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Missing save data.\n"))
			return
		}

		var save events.Save
		if err := json.Unmarshal(body, &save); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Invalid save.\n"))
			return
		}

		api.saves <- save
	case http.MethodDelete:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Missing invalidation data.\n"))
			return
		}

		var invalidation events.Invalidation
		if err := json.Unmarshal(body, &invalidation); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Invalid invalidation.\n"))
			return
		}

		api.invalidations <- invalidation
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (api *eventsAPI) Invalidations() <-chan events.Invalidation {
	return api.invalidations
}

func (api *eventsAPI) Saves() <-chan events.Save {
	return api.saves
}
