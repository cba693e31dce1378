package events

import (
	"context"
	"encoding/json"

	"github.com/prebid/stored-responses/stored_requests"
)

// Save represents a bulk save
type Save struct {
	Responses map[string]json.RawMessage `json:"responses"`
}

// Invalidation represents a bulk invalidation
type Invalidation struct {
	Responses []string `json:"responses"`
}

// EventProducer will produce cache save and invalidation events on its channels
type EventProducer interface {
	Saves() <-chan Save
	Invalidations() <-chan Invalidation
}

// EventListener applies the events of a producer to a cache until it is stopped.
type EventListener struct {
	stop         chan struct{}
	onSave       func()
	onInvalidate func()
}

// SimpleEventListener creates a new EventListener with no callbacks.
func SimpleEventListener() *EventListener {
	return NewEventListener(nil, nil)
}

// NewEventListener creates a new EventListener. The callbacks, if set, run after
// each event has been applied to the cache.
func NewEventListener(onSave func(), onInvalidate func()) *EventListener {
	return &EventListener{
		stop:         make(chan struct{}),
		onSave:       onSave,
		onInvalidate: onInvalidate,
	}
}

// Stop the event listener. It must be called at most once.
func (e *EventListener) Stop() {
	close(e.stop)
}

// Listen blocks, saving and invalidating cache entries as events arrive, until Stop is called.
func (e *EventListener) Listen(cache stored_requests.Cache, events EventProducer) {
	for {
		select {
		case save := <-events.Saves():
			cache.Responses.Save(context.Background(), save.Responses)
			if e.onSave != nil {
				e.onSave()
			}
		case invalidation := <-events.Invalidations():
			cache.Responses.Invalidate(context.Background(), invalidation.Responses)
			if e.onInvalidate != nil {
				e.onInvalidate()
			}
		case <-e.stop:
			return
		}
	}
}
