package pricing

import "github.com/shopspring/decimal"

// PoolQuote is the price the PT/YT pool currently trades at.
// PtPrice + YtPrice == 1.
type PoolQuote struct {
	Ratio   decimal.Decimal `json:"ratio"`
	PtPrice decimal.Decimal `json:"pt_price"`
	YtPrice decimal.Decimal `json:"yt_price"`
}

// PoolPrices derives the pool-implied PT and YT prices from raw reserves.
// The concentration is added to both reserves as virtual liquidity, then
//
//	ratio = (virtualYt / ytPrice) / (virtualPt / ptPrice)
//	pt    = ratio / (ratio + 1)
//	yt    = 1 - pt
//
// Where the ratio is unbounded (no YT value, no virtual PT) PT trades at 1;
// where it is zero (no PT value, no virtual YT) PT trades at 0. An empty
// pool with no virtual liquidity trades at the synthetic prices.
func PoolPrices(ptAmount, ytAmount decimal.Decimal, s Synthetic, concentration decimal.Decimal) PoolQuote {
	virtualPt := ptAmount.Add(concentration)
	virtualYt := ytAmount.Add(concentration)

	var ratio, pt decimal.Decimal
	switch {
	case virtualPt.IsZero() && virtualYt.IsZero():
		pt = s.PtPrice
	case s.YtPrice.IsZero() || virtualPt.IsZero():
		pt = one
	case s.PtPrice.IsZero() || virtualYt.IsZero():
		pt = zero
	default:
		ratio = div(div(virtualYt, s.YtPrice), div(virtualPt, s.PtPrice))
		pt = div(ratio, ratio.Add(one))
	}

	return PoolQuote{Ratio: ratio, PtPrice: pt, YtPrice: one.Sub(pt)}
}
