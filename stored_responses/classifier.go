package stored_responses

import (
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/openrtb_ext"
	jsonpatch "gopkg.in/evanphx/json-patch.v4"
)

// Classification splits the imps of a request into the ones which still need live bidding and
// the stored responses which answer the rest.
type Classification struct {
	requiredImps []openrtb2.Imp
	// storedResponseIDs holds every id to fetch, de-duplicated, in order of first appearance.
	storedResponseIDs []string
	idToBidType       map[string]openrtb_ext.BidType

	auctionDirectives int
	bidDirectives     int
}

// RequiredImps returns the imps which must be sent to live bidders.
func (c *Classification) RequiredImps() []openrtb2.Imp {
	return c.requiredImps
}

// HasStoredResponses is true if any imp references a stored response.
func (c *Classification) HasStoredResponses() bool {
	return len(c.storedResponseIDs) > 0
}

func (c *Classification) addStoredResponseID(id string, bidType openrtb_ext.BidType) {
	if _, seen := c.idToBidType[id]; !seen {
		c.storedResponseIDs = append(c.storedResponseIDs, id)
	}
	c.idToBidType[id] = bidType
}

func classifyImps(imps []openrtb2.Imp, aliases map[string]string, bidders openrtb_ext.BidderRegistry) (*Classification, error) {
	c := &Classification{
		requiredImps: make([]openrtb2.Imp, 0, len(imps)),
		idToBidType:  make(map[string]openrtb_ext.BidType),
	}

	for i := range imps {
		imp := &imps[i]
		d, err := parseDirective(imp)
		if err != nil {
			return nil, err
		}

		switch d := d.(type) {
		case noDirective:
			c.requiredImps = append(c.requiredImps, *imp)
		case auctionDirective:
			c.auctionDirectives++
			c.addStoredResponseID(d.id, bidTypeForImp(imp))
		case bidDirective:
			c.bidDirectives += len(d.bidders)
			bidType := bidTypeForImp(imp)
			for _, bidder := range d.bidders {
				c.addStoredResponseID(d.bidderToID[bidder], bidType)
			}

			reducedImp, err := removeStoredBidders(*imp, d.bidders)
			if err != nil {
				return nil, err
			}
			if hasLiveBidder(reducedImp.Ext, aliases, bidders) {
				c.requiredImps = append(c.requiredImps, reducedImp)
			}
		}
	}

	if len(c.storedResponseIDs) == 0 {
		c.requiredImps = imps
	}
	return c, nil
}

// removeStoredBidders returns imp with the named bidder keys dropped from its ext.
// imp is a copy; the caller's ext bytes are never modified.
func removeStoredBidders(imp openrtb2.Imp, storedBidders []string) (openrtb2.Imp, error) {
	patch := make(map[string]interface{}, len(storedBidders))
	for _, bidder := range storedBidders {
		if _, _, _, err := jsonparser.Get(imp.Ext, bidder); err == nil {
			patch[bidder] = nil
		}
	}
	if len(patch) == 0 {
		return imp, nil
	}

	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return imp, err
	}
	ext, err := jsonpatch.MergePatch(imp.Ext, patchJSON)
	if err != nil {
		return imp, &errortypes.BadInput{
			Message: fmt.Sprintf("Error decoding bidRequest.imp.ext for impId = %s : %s", imp.ID, err.Error()),
		}
	}
	imp.Ext = ext
	return imp, nil
}

// hasLiveBidder is true if a top level key of ext is a bidder or an alias.
func hasLiveBidder(ext json.RawMessage, aliases map[string]string, bidders openrtb_ext.BidderRegistry) bool {
	found := false
	jsonparser.ObjectEach(ext, func(key []byte, _ []byte, _ jsonparser.ValueType, _ int) error {
		if !found && isLiveBidder(string(key), aliases, bidders) {
			found = true
		}
		return nil
	})
	return found
}

func isLiveBidder(key string, aliases map[string]string, bidders openrtb_ext.BidderRegistry) bool {
	if openrtb_ext.IsBidderNameReserved(key) {
		return false
	}
	if bidders.IsValidName(key) {
		return true
	}
	_, isAlias := aliases[key]
	return isAlias
}

// bidTypeForImp infers the media type of stored bids from the imp. Banner wins when several
// formats are present and is the default when none is.
func bidTypeForImp(imp *openrtb2.Imp) openrtb_ext.BidType {
	switch {
	case imp.Banner != nil:
		return openrtb_ext.BidTypeBanner
	case imp.Video != nil:
		return openrtb_ext.BidTypeVideo
	case imp.Native != nil:
		return openrtb_ext.BidTypeNative
	case imp.Audio != nil:
		return openrtb_ext.BidTypeAudio
	default:
		return openrtb_ext.BidTypeBanner
	}
}
