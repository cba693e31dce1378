package exchange

import (
	"testing"

	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPriceBucket(t *testing.T) {
	testCases := []struct {
		description string
		cpm         float64
		expected    map[string]string
	}{
		{
			description: "Inside every range",
			cpm:         1.87,
			expected:    map[string]string{"low": "1.50", "medium": "1.80", "med": "1.80", "high": "1.87", "auto": "1.85", "dense": "1.87"},
		},
		{
			description: "Above the low max",
			cpm:         5.72,
			expected:    map[string]string{"low": "5.00", "medium": "5.70", "med": "5.70", "high": "5.72", "auto": "5.70", "dense": "5.70"},
		},
		{
			description: "Above every max",
			cpm:         25,
			expected:    map[string]string{"low": "5.00", "medium": "20.00", "high": "20.00", "auto": "20.00", "dense": "20.00"},
		},
		{
			description: "Zero",
			cpm:         0,
			expected:    map[string]string{"low": "0.00", "medium": "0.00", "dense": "0.00"},
		},
	}

	for _, test := range testCases {
		for granularity, expected := range test.expected {
			pg, err := openrtb_ext.PriceGranularityFromString(granularity)
			require.NoError(t, err)
			assert.Equal(t, expected, GetPriceBucket(test.cpm, pg), "%s: %s", test.description, granularity)
		}
	}
}

func TestGetPriceBucketCustomRanges(t *testing.T) {
	pg, err := openrtb_ext.NewPriceGranularityFromRanges(1, []openrtb_ext.GranularityRange{
		{Min: 0, Max: 10, Increment: 2.5},
	})
	require.NoError(t, err)

	assert.Equal(t, "7.5", GetPriceBucket(9.5, pg))
	assert.Equal(t, "10.0", GetPriceBucket(10.01, pg))
}

func TestGetPriceBucketNoRanges(t *testing.T) {
	assert.Equal(t, "0", GetPriceBucket(1, openrtb_ext.PriceGranularity{}))
}

func TestGetPriceBucketCapsAtHighestRange(t *testing.T) {
	pg := openrtb_ext.PriceGranularity{
		Precision: 2,
		Ranges: []openrtb_ext.GranularityRange{
			{Min: 5, Max: 20, Increment: 0.5},
			{Min: 0, Max: 5, Increment: 0.1},
		},
	}

	assert.Equal(t, "20.00", GetPriceBucket(30, pg))
	assert.Equal(t, "12.50", GetPriceBucket(12.7, pg))
}
