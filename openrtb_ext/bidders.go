package openrtb_ext

// BidderName refers to a core bidder id or an alias id.
type BidderName string

func (name *BidderName) String() string {
	if name == nil {
		return ""
	}
	return string(*name)
}

// Names of reserved bidders. These names may not be used by a core bidder or alias.
const (
	BidderReservedAll      BidderName = "all"      // Reserved for the /info/bidders/all endpoint.
	BidderReservedContext  BidderName = "context"  // Reserved for first party data.
	BidderReservedData     BidderName = "data"     // Reserved for first party data.
	BidderReservedGeneral  BidderName = "general"  // Reserved for non-bidder specific messages when using a map keyed on the bidder name.
	BidderReservedGPID     BidderName = "gpid"     // Reserved for Global Placement ID (GPID).
	BidderReservedPrebid   BidderName = "prebid"   // Reserved for Prebid Server configuration.
	BidderReservedSKAdN    BidderName = "skadn"    // Reserved for Apple's SKAdNetwork OpenRTB extension.
	BidderReservedTID      BidderName = "tid"      // Reserved for Per-Impression Transactions IDs for Multi-Impression Bid Requests.
	BidderReservedAE       BidderName = "ae"       // Reserved for FLEDGE Auction Environment
	BidderReservedRewarded BidderName = "rewarded" // Reserved for rewarded inventory signal.
)

// IsBidderNameReserved returns true if the specified name matches a reserved bidder name.
func IsBidderNameReserved(name string) bool {
	_, reserved := reservedBidderNames[name]
	return reserved
}

var reservedBidderNames = map[string]struct{}{
	string(BidderReservedAll):      {},
	string(BidderReservedContext):  {},
	string(BidderReservedData):     {},
	string(BidderReservedGeneral):  {},
	string(BidderReservedGPID):     {},
	string(BidderReservedPrebid):   {},
	string(BidderReservedSKAdN):    {},
	string(BidderReservedTID):      {},
	string(BidderReservedAE):       {},
	string(BidderReservedRewarded): {},
}

// Names of core bidders. These names *must* match the bidder code in Prebid.js if an adapter also exists in that
// project.
const (
	Bidder33Across     BidderName = "33across"
	BidderAdform       BidderName = "adform"
	BidderAdnuntius    BidderName = "adnuntius"
	BidderAppnexus     BidderName = "appnexus"
	BidderBeachfront   BidderName = "beachfront"
	BidderConversant   BidderName = "conversant"
	BidderGrid         BidderName = "grid"
	BidderIx           BidderName = "ix"
	BidderOpenx        BidderName = "openx"
	BidderPubmatic     BidderName = "pubmatic"
	BidderRubicon      BidderName = "rubicon"
	BidderSharethrough BidderName = "sharethrough"
	BidderSmaato       BidderName = "smaato"
	BidderSovrn        BidderName = "sovrn"
	BidderYieldmo      BidderName = "yieldmo"
)

// CoreBidderNames returns a slice of all core bidders.
func CoreBidderNames() []BidderName {
	return []BidderName{
		Bidder33Across,
		BidderAdform,
		BidderAdnuntius,
		BidderAppnexus,
		BidderBeachfront,
		BidderConversant,
		BidderGrid,
		BidderIx,
		BidderOpenx,
		BidderPubmatic,
		BidderRubicon,
		BidderSharethrough,
		BidderSmaato,
		BidderSovrn,
		BidderYieldmo,
	}
}

// BidderRegistry answers whether a name refers to a known bidder.
//
// Implementations must be safe for concurrent access by multiple goroutines.
type BidderRegistry interface {
	IsValidName(name string) bool
}

type bidderRegistry map[string]BidderName

// NewBidderRegistry builds a read-only registry for the given bidders. Reserved names are never valid.
func NewBidderRegistry(names ...BidderName) BidderRegistry {
	registry := make(bidderRegistry, len(names))
	for _, name := range names {
		if IsBidderNameReserved(string(name)) {
			continue
		}
		registry[string(name)] = name
	}
	return registry
}

// IsValidName is an exact, case sensitive lookup.
func (r bidderRegistry) IsValidName(name string) bool {
	_, ok := r[name]
	return ok
}

var coreBidderRegistry = NewBidderRegistry(CoreBidderNames()...)

// CoreBidderRegistry returns the registry of the compiled-in core bidders.
func CoreBidderRegistry() BidderRegistry {
	return coreBidderRegistry
}
