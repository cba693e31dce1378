package router

import (
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/stored-responses/config"
	"github.com/prebid/stored-responses/endpoints"
	"github.com/prebid/stored-responses/endpoints/openrtb2"
	"github.com/prebid/stored-responses/exchange"
	metricsConf "github.com/prebid/stored-responses/metrics/config"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/prebid/stored-responses/router/aspects"
	storedRequestsConf "github.com/prebid/stored-responses/stored_requests/config"
	"github.com/prebid/stored-responses/stored_responses"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NoCache Middleware sets headers which tell clients and proxies not to cache auction results.
type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// Router serves the public auction routes. Admin holds the routes served on the admin port.
type Router struct {
	*httprouter.Router
	Admin         *httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	Shutdown      func()
}

func getTransport(cfg config.HTTPClient) *http.Transport {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.IdleConnTimeout) * time.Second,
	}

	if cfg.DialTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   time.Duration(cfg.DialTimeout) * time.Millisecond,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	return transport
}

// New builds the auction pipeline from the configuration and registers its routes.
func New(cfg *config.Configuration, revision string) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
		Admin:  httprouter.New(),
	}

	generalHttpClient := &http.Client{
		Transport: getTransport(cfg.Client),
	}

	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, openrtb_ext.CoreBidderNames())

	fetcher, shutdown := storedRequestsConf.CreateStoredResponses(&cfg.StoredResponses, r.MetricsEngine, generalHttpClient, r.Admin)
	r.Shutdown = shutdown

	bidders := openrtb_ext.CoreBidderRegistry()
	processor := stored_responses.NewProcessor(fetcher, bidders, cfg.DefaultTimeoutDuration(), r.MetricsEngine)

	enabledAdapters := cfg.EnabledAdapters()
	for bidder, endpoint := range enabledAdapters {
		glog.Infof("Live bidder %s enabled at %s", bidder, endpoint)
	}
	fanout := exchange.NewHTTPBidderFanout(generalHttpClient, enabledAdapters)
	theExchange := exchange.NewExchange(processor, fanout, r.MetricsEngine, cfg.Auction)

	auctionEndpoint, err := openrtb2.NewEndpoint(theExchange, bidders, r.MetricsEngine, cfg.MaxRequestSize)
	if err != nil {
		shutdown()
		return nil, err
	}

	r.POST("/openrtb2/auction", aspects.QueuedRequestTimeout(auctionEndpoint, cfg.RequestTimeoutHeaders))
	r.GET("/status", handlerFunc(endpoints.NewStatusEndpoint("")))

	r.Admin.GET("/version", handlerFunc(endpoints.NewVersionEndpoint("", revision)))
	if r.MetricsEngine.PrometheusMetrics != nil {
		r.Admin.Handler("GET", "/metrics", promhttp.HandlerFor(r.MetricsEngine.PrometheusMetrics.Registry, promhttp.HandlerOpts{
			ErrorLog:            loggerForPrometheus{},
			MaxRequestsInFlight: 5,
			Timeout:             cfg.Metrics.Prometheus.Timeout(),
		}))
	}

	return r, nil
}

func handlerFunc(f http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		f(w, r)
	}
}

type loggerForPrometheus struct{}

func (loggerForPrometheus) Println(v ...interface{}) {
	glog.Warningln(v...)
}
