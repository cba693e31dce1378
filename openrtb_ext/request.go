package openrtb_ext

// ExtRequest defines the contract for bidrequest.ext
type ExtRequest struct {
	Prebid ExtRequestPrebid `json:"prebid"`
}

// ExtRequestPrebid defines the contract for bidrequest.ext.prebid
type ExtRequestPrebid struct {
	Aliases   map[string]string    `json:"aliases,omitempty"`
	Targeting *ExtRequestTargeting `json:"targeting,omitempty"`
	Debug     bool                 `json:"debug,omitempty"`
}

// ExtRequestTargeting defines the contract for bidrequest.ext.prebid.targeting
type ExtRequestTargeting struct {
	PriceGranularity string `json:"pricegranularity,omitempty"`
	MaxLength        int    `json:"lengthmax,omitempty"`
}
