package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestConcentration_DisabledCurveReturnsInitial(t *testing.T) {
	pool := model.PoolConfig{InitialConcentration: d(5000), MaturityConcentration: decimal.Zero}

	for _, now := range []int64{-100, 0, 250, 999, 1000, 5000} {
		c := Concentration(now, pool, 0, 1000)
		if !c.Equal(d(5000)) {
			t.Errorf("now=%d: expected initial concentration 5000, got %s", now, c)
		}
	}
}

func TestConcentration_LinearInterpolation(t *testing.T) {
	pool := model.PoolConfig{InitialConcentration: d(1000), MaturityConcentration: d(100)}

	tests := []struct {
		now  int64
		want float64
	}{
		{0, 1000},
		{250, 775},
		{500, 550},
		{750, 325},
		{1000, 100},
		{2000, 100},
	}
	for _, tt := range tests {
		got := Concentration(tt.now, pool, 0, 1000)
		if !got.Equal(d(tt.want)) {
			t.Errorf("now=%d: expected %v, got %s", tt.now, tt.want, got)
		}
	}
}

func TestConcentration_MonotonicAndClampsAtEnd(t *testing.T) {
	tests := []struct {
		name              string
		initial, maturity float64
	}{
		{"decreasing", 2_000_000, 50_000},
		{"increasing", 50_000, 2_000_000},
	}
	for _, tt := range tests {
		pool := model.PoolConfig{InitialConcentration: d(tt.initial), MaturityConcentration: d(tt.maturity)}
		increasing := tt.maturity > tt.initial

		prev := Concentration(100, pool, 100, 10_100)
		for now := int64(137); now <= 12_000; now += 137 {
			c := Concentration(now, pool, 100, 10_100)
			if increasing && c.LessThan(prev) {
				t.Fatalf("%s: not monotonic at now=%d: %s < %s", tt.name, now, c, prev)
			}
			if !increasing && c.GreaterThan(prev) {
				t.Fatalf("%s: not monotonic at now=%d: %s > %s", tt.name, now, c, prev)
			}
			prev = c
		}

		if got := Concentration(10_100, pool, 100, 10_100); !got.Equal(d(tt.maturity)) {
			t.Errorf("%s: expected exact maturity concentration at end, got %s", tt.name, got)
		}
	}
}

func TestConcentration_ZeroLengthMarketIsMatured(t *testing.T) {
	pool := model.PoolConfig{InitialConcentration: d(1000), MaturityConcentration: d(10)}

	if got := Concentration(5, pool, 10, 10); !got.Equal(d(10)) {
		t.Errorf("expected maturity concentration for zero-length market, got %s", got)
	}
}
