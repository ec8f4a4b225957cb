package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPoolPrices_BalancedReservesConvergeToSynthetic(t *testing.T) {
	s := Synthetic{PtPrice: d(0.4), YtPrice: d(0.6)}
	q := PoolPrices(d(1000), d(1000), s, decimal.Zero)

	tolerance := d(0.000000000000000001)
	if !within(q.Ratio, decimal.RequireFromString("0.666666666666666666666667"), tolerance) {
		t.Errorf("expected ratio ≈ 0.6667, got %s", q.Ratio)
	}
	if !within(q.PtPrice, d(0.4), tolerance) {
		t.Errorf("expected pool pt ≈ 0.4, got %s", q.PtPrice)
	}
	if !within(q.YtPrice, d(0.6), tolerance) {
		t.Errorf("expected pool yt ≈ 0.6, got %s", q.YtPrice)
	}
}

func TestPoolPrices_ExactRatio(t *testing.T) {
	s := Synthetic{PtPrice: d(0.8), YtPrice: d(0.2)}
	q := PoolPrices(d(1000), d(1000), s, decimal.Zero)

	if !q.Ratio.Equal(d(4)) {
		t.Errorf("expected ratio=4, got %s", q.Ratio)
	}
	if !q.PtPrice.Equal(d(0.8)) {
		t.Errorf("expected pool pt=0.8, got %s", q.PtPrice)
	}
}

func TestPoolPrices_MoreYtInPoolRaisesPtPrice(t *testing.T) {
	s := Synthetic{PtPrice: d(0.4), YtPrice: d(0.6)}
	balanced := PoolPrices(d(1000), d(1000), s, decimal.Zero)
	ytHeavy := PoolPrices(d(1000), d(2000), s, decimal.Zero)
	ptHeavy := PoolPrices(d(2000), d(1000), s, decimal.Zero)

	if ytHeavy.PtPrice.LessThanOrEqual(balanced.PtPrice) {
		t.Errorf("YT-heavy pool should price PT higher: balanced=%s ytHeavy=%s",
			balanced.PtPrice, ytHeavy.PtPrice)
	}
	if ptHeavy.PtPrice.GreaterThanOrEqual(balanced.PtPrice) {
		t.Errorf("PT-heavy pool should price PT lower: balanced=%s ptHeavy=%s",
			balanced.PtPrice, ptHeavy.PtPrice)
	}
}

func TestPoolPrices_ConcentrationDampensImbalance(t *testing.T) {
	s := Synthetic{PtPrice: d(0.4), YtPrice: d(0.6)}
	shallow := PoolPrices(d(1000), d(3000), s, decimal.Zero)
	deep := PoolPrices(d(1000), d(3000), s, d(1_000_000))

	gapShallow := shallow.PtPrice.Sub(s.PtPrice).Abs()
	gapDeep := deep.PtPrice.Sub(s.PtPrice).Abs()
	if gapDeep.GreaterThanOrEqual(gapShallow) {
		t.Errorf("virtual liquidity should pull pool price toward fair price: shallow gap=%s deep gap=%s",
			gapShallow, gapDeep)
	}
}

func TestPoolPrices_SumsToOne(t *testing.T) {
	one := decimal.NewFromInt(1)
	synthetics := []Synthetic{
		{d(0.4), d(0.6)},
		{d(0.999999), d(0.000001)},
		{d(0.333333), d(0.666667)},
		{d(0.95), d(0.05)},
	}
	reserves := []struct{ pt, yt float64 }{
		{1, 1},
		{1000, 1000},
		{123_456_789, 987},
		{3, 9_999_999_999},
	}
	concentrations := []float64{0, 1, 50_000, 1_000_000_000}

	for _, s := range synthetics {
		for _, r := range reserves {
			for _, c := range concentrations {
				q := PoolPrices(d(r.pt), d(r.yt), s, d(c))
				if !q.PtPrice.Add(q.YtPrice).Equal(one) {
					t.Errorf("pt=%v yt=%v c=%v: pool prices sum to %s", r.pt, r.yt, c, q.PtPrice.Add(q.YtPrice))
				}
			}
		}
	}
}

func TestPoolPrices_DegenerateInputs(t *testing.T) {
	tests := []struct {
		name   string
		pt, yt float64
		s      Synthetic
		c      float64
		wantPt float64
	}{
		{"matured market, yt worthless", 1000, 1000, Synthetic{d(1), decimal.Zero}, 0, 1},
		{"no virtual pt", 0, 1000, Synthetic{d(0.4), d(0.6)}, 0, 1},
		{"no virtual yt", 1000, 0, Synthetic{d(0.4), d(0.6)}, 0, 0},
		{"empty pool", 0, 0, Synthetic{d(0.4), d(0.6)}, 0, 0.4},
	}
	for _, tt := range tests {
		q := PoolPrices(d(tt.pt), d(tt.yt), tt.s, d(tt.c))
		if !q.PtPrice.Equal(d(tt.wantPt)) {
			t.Errorf("%s: expected pool pt=%v, got %s", tt.name, tt.wantPt, q.PtPrice)
		}
		if !q.PtPrice.Add(q.YtPrice).Equal(decimal.NewFromInt(1)) {
			t.Errorf("%s: pool prices do not sum to 1", tt.name)
		}
	}
}
