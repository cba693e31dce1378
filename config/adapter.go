package config

import (
	"fmt"
	"net/url"

	"github.com/prebid/stored-responses/openrtb_ext"
)

// Adapter configures a live bidder. Bidders without an enabled entry are never called.
type Adapter struct {
	Endpoint string `mapstructure:"endpoint"` // Required
	Disabled bool   `mapstructure:"disabled"`
}

func validateAdapters(adapters map[string]Adapter, errs []error) []error {
	registry := openrtb_ext.CoreBidderRegistry()
	for name, adapter := range adapters {
		if !registry.IsValidName(name) {
			errs = append(errs, fmt.Errorf("adapters.%s is not a known bidder", name))
			continue
		}
		if adapter.Disabled {
			continue
		}
		if u, err := url.Parse(adapter.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("adapters.%s.endpoint must be an absolute http(s) url. Got %q", name, adapter.Endpoint))
		}
	}
	return errs
}

// EnabledAdapters returns the endpoints of the adapters which are not disabled, keyed by bidder.
func (cfg *Configuration) EnabledAdapters() map[openrtb_ext.BidderName]string {
	enabled := make(map[openrtb_ext.BidderName]string, len(cfg.Adapters))
	for name, adapter := range cfg.Adapters {
		if !adapter.Disabled {
			enabled[openrtb_ext.BidderName(name)] = adapter.Endpoint
		}
	}
	return enabled
}
