package openrtb_ext

import (
	"errors"
	"fmt"
)

const defaultPricePrecision = 2

// PriceGranularity defines the price buckets used to build the hb_pb targeting value.
type PriceGranularity struct {
	Precision int                `json:"precision,omitempty"`
	Ranges    []GranularityRange `json:"ranges,omitempty"`
}

// GranularityRange struct defines a range of prices used by PriceGranularity
type GranularityRange struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Increment float64 `json:"increment"`
}

// NewPriceGranularityFromRanges validates the ranges and builds a PriceGranularity from them.
func NewPriceGranularityFromRanges(precision int, ranges []GranularityRange) (PriceGranularity, error) {
	if len(ranges) == 0 {
		return PriceGranularity{}, errors.New("Price granularity error: Max value among all ranges was not found. Please check if ranges are valid")
	}
	var prevMax float64
	for i, r := range ranges {
		if r.Max <= prevMax {
			return PriceGranularity{}, fmt.Errorf("Price granularity error: range list must be ordered with increasing \"max\", range %d is out of order", i)
		}
		if r.Increment <= 0 {
			return PriceGranularity{}, fmt.Errorf("Price granularity error: increment must be a nonzero positive number in range %d", i)
		}
		prevMax = r.Max
	}
	return PriceGranularity{Precision: precision, Ranges: ranges}, nil
}

// RangesMax returns the highest max among all ranges.
func (pg PriceGranularity) RangesMax() float64 {
	var max float64
	for _, r := range pg.Ranges {
		if r.Max > max {
			max = r.Max
		}
	}
	return max
}

const (
	PriceGranularityLow    = "low"
	PriceGranularityMedium = "medium"
	PriceGranularityMed    = "med"
	PriceGranularityHigh   = "high"
	PriceGranularityAuto   = "auto"
	PriceGranularityDense  = "dense"
)

// priceGranularityPresets is built once at startup and never written afterwards.
var priceGranularityPresets = func() map[string]PriceGranularity {
	mustBuild := func(ranges ...GranularityRange) PriceGranularity {
		pg, err := NewPriceGranularityFromRanges(defaultPricePrecision, ranges)
		if err != nil {
			panic(err)
		}
		return pg
	}
	medium := mustBuild(GranularityRange{Min: 0, Max: 20, Increment: 0.1})

	return map[string]PriceGranularity{
		PriceGranularityLow:    mustBuild(GranularityRange{Min: 0, Max: 5, Increment: 0.5}),
		PriceGranularityMedium: medium,
		PriceGranularityMed:    medium,
		PriceGranularityHigh:   mustBuild(GranularityRange{Min: 0, Max: 20, Increment: 0.01}),
		PriceGranularityAuto: mustBuild(
			GranularityRange{Min: 0, Max: 5, Increment: 0.05},
			GranularityRange{Min: 5, Max: 10, Increment: 0.1},
			GranularityRange{Min: 10, Max: 20, Increment: 0.5}),
		PriceGranularityDense: mustBuild(
			GranularityRange{Min: 0, Max: 3, Increment: 0.01},
			GranularityRange{Min: 3, Max: 8, Increment: 0.05},
			GranularityRange{Min: 8, Max: 20, Increment: 0.5}),
	}
}()

// PriceGranularityFromString returns the preset with the given name. The returned value is a copy.
func PriceGranularityFromString(gran string) (PriceGranularity, error) {
	pg, ok := priceGranularityPresets[gran]
	if !ok {
		return PriceGranularity{}, fmt.Errorf("Invalid string price granularity with value: %s", gran)
	}
	return copyPriceGranularity(pg), nil
}

// PriceGranularityFromStringOrDefault falls back to the medium preset for unknown names.
func PriceGranularityFromStringOrDefault(gran string) PriceGranularity {
	if pg, err := PriceGranularityFromString(gran); err == nil {
		return pg
	}
	return NewPriceGranularityDefault()
}

// NewPriceGranularityDefault returns the default (medium) price granularity.
func NewPriceGranularityDefault() PriceGranularity {
	return copyPriceGranularity(priceGranularityPresets[PriceGranularityMedium])
}

func copyPriceGranularity(pg PriceGranularity) PriceGranularity {
	ranges := make([]GranularityRange, len(pg.Ranges))
	copy(ranges, pg.Ranges)
	return PriceGranularity{Precision: pg.Precision, Ranges: ranges}
}
