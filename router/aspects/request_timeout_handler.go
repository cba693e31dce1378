package aspects

import (
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/stored-responses/config"
)

// QueuedRequestTimeout rejects auctions which already spent their budget waiting in a fronting queue.
// Both headers hold seconds as floats.
func QueuedRequestTimeout(f httprouter.Handle, reqTimeoutHeaders config.RequestTimeoutHeaders) httprouter.Handle {
	if reqTimeoutHeaders.RequestTimeInQueue == "" || reqTimeoutHeaders.RequestTimeoutInQueue == "" {
		return f
	}

	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		reqTimeInQueue := r.Header.Get(reqTimeoutHeaders.RequestTimeInQueue)
		reqTimeout := r.Header.Get(reqTimeoutHeaders.RequestTimeoutInQueue)

		if reqTimeInQueue == "" || reqTimeout == "" {
			f(w, r, params)
			return
		}

		timeInQueue, timeInQueueErr := strconv.ParseFloat(reqTimeInQueue, 64)
		timeout, timeoutErr := strconv.ParseFloat(reqTimeout, 64)

		if timeInQueueErr != nil || timeoutErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if timeInQueue >= timeout {
			glog.V(2).Infof("Dropping auction after %vs in queue, limit %vs", timeInQueue, timeout)
			w.WriteHeader(http.StatusRequestTimeout)
			return
		}

		f(w, r, params)
	}
}
