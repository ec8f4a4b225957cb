package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Synthetic holds the fair-value prices of PT and YT in units of the
// yield-bearing asset. PtPrice + YtPrice == 1.
type Synthetic struct {
	PtPrice decimal.Decimal `json:"pt_price"`
	YtPrice decimal.Decimal `json:"yt_price"`
}

// SyntheticPrices prices PT as the start price discounted by the projected
// end price, floored to priceBase and capped at par:
//
//	pt = floor(startPrice/priceBase / endPrice)
//	yt = 1 - pt
//
// startPrice is raw (scaled by priceBase); endPrice is descaled. An end
// price of zero or below prices PT at par, the limit of the division.
func SyntheticPrices(startPrice, priceBase, endPrice decimal.Decimal) (Synthetic, error) {
	if !priceBase.IsPositive() {
		return Synthetic{}, fmt.Errorf("%w: price base %s must be positive", ErrInvariant, priceBase)
	}
	if !endPrice.IsPositive() {
		return Synthetic{PtPrice: one, YtPrice: zero}, nil
	}

	pt := floorTo(div(div(startPrice, priceBase), endPrice), priceBase)
	if pt.GreaterThan(one) {
		pt = one
	}
	return Synthetic{PtPrice: pt, YtPrice: one.Sub(pt)}, nil
}
