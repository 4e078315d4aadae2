package services

import (
	"github.com/meridian-goods/shipping-api/internal/domain"
)

// DefaultPackingFactor approximates stacking inefficiency when collapsing a
// cart into one bounding box. Tunable, not derived.
const DefaultPackingFactor = 1.2

// AggregateParcel reduces cart lines into a single parcel estimate. Weight is
// the quantity-weighted sum of line weights; dimensions take the largest
// single-item extent per axis scaled by the packing factor. This is a
// stacking heuristic, not a bin-packing solution.
//
// Malformed inputs are clamped rather than rejected: negative weights and
// dimensions count as zero, non-positive quantities as zero items. An empty
// cart yields a zero parcel.
func AggregateParcel(lines []domain.CartLine, packingFactor float64) domain.Parcel {
	if packingFactor < 1 {
		packingFactor = DefaultPackingFactor
	}

	var (
		weightGrams float64
		bounding    domain.Dimensions
		totalItems  int
	)

	for _, line := range lines {
		quantity := line.Quantity
		if quantity <= 0 {
			continue
		}
		weight := line.WeightGrams
		if weight < 0 {
			weight = 0
		}
		weightGrams += float64(weight) * float64(quantity)
		totalItems += quantity

		bounding.LengthCm = maxAxis(bounding.LengthCm, line.Dimensions.LengthCm)
		bounding.WidthCm = maxAxis(bounding.WidthCm, line.Dimensions.WidthCm)
		bounding.HeightCm = maxAxis(bounding.HeightCm, line.Dimensions.HeightCm)
	}

	bounding.LengthCm *= packingFactor
	bounding.WidthCm *= packingFactor
	bounding.HeightCm *= packingFactor

	return domain.Parcel{
		WeightKg:   weightGrams / 1000,
		Bounding:   bounding,
		VolumeCm3:  bounding.Volume(),
		LineCount:  len(lines),
		TotalItems: totalItems,
	}
}

func maxAxis(current, candidate float64) float64 {
	if candidate < 0 {
		candidate = 0
	}
	if candidate > current {
		return candidate
	}
	return current
}
