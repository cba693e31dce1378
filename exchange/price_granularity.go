package exchange

import (
	"math"
	"strconv"

	"github.com/prebid/stored-responses/openrtb_ext"
)

// GetPriceBucket rounds cpm down to the increment of the range it falls in and formats it with the
// granularity's precision. A cpm above every range is capped at the highest max.
func GetPriceBucket(cpm float64, config openrtb_ext.PriceGranularity) string {
	bucketMax := config.RangesMax()
	increment := 0.0
	for _, r := range config.Ranges {
		if cpm >= r.Min && cpm <= r.Max {
			increment = r.Increment
		}
	}

	if cpm > bucketMax {
		return strconv.FormatFloat(bucketMax, 'f', config.Precision, 64)
	}
	if increment > 0 {
		return getCpmTarget(cpm, increment, config.Precision)
	}
	return ""
}

func getCpmTarget(cpm float64, increment float64, precision int) string {
	// cpm/increment is rounded up at the precision first, so 1.87/0.01 gives 187 and not 186.99...
	steps := roundUp(cpm/increment, precision)
	roundedCPM := math.Floor(steps) * increment
	return strconv.FormatFloat(roundedCPM, 'f', precision, 64)
}

func roundUp(input float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Ceil(pow*input) / pow
}
