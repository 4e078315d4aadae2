package services

import (
	"math"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

// AffiliateCommission computes the revenue share owed to a partner for an
// order, in minor currency units, rounded half away from zero. Disabled
// affiliate programs and non-positive totals earn nothing. Internal
// reporting only; never shown to the shopper.
func AffiliateCommission(partner domain.CarrierPartner, orderTotal int64) int64 {
	if !partner.AffiliateEnabled || partner.CommissionRate <= 0 || orderTotal <= 0 {
		return 0
	}
	return int64(math.Round(float64(orderTotal) * partner.CommissionRate / 100))
}
