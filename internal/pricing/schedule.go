package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/model"
)

// Schedule is the market-type specific part of a market configuration. It is
// either EpochCompounding or ContinuousDecay.
type Schedule interface {
	schedule()
}

// EpochCompounding markets project their end price by compounding the
// growth of the yield-bearing asset's spot price since the market start.
// With CompoundingPeriod == 0 the ledger epoch is the compounding period.
type EpochCompounding struct {
	StartTime         int64
	EndTime           int64
	StartPrice        decimal.Decimal
	MarketAPY         decimal.Decimal
	MarketSolPrice    decimal.Decimal
	MarketEndPrice    decimal.Decimal
	LastUpdateEpoch   uint64
	LastUpdateTime    int64
	StartEpoch        uint64
	UpdateSkipTime    int64
	CompoundingPeriod int64
	PriceBase         decimal.Decimal
}

// ContinuousDecay markets move their end price linearly from InitialEndPrice
// to StartPrice over the market's lifetime.
type ContinuousDecay struct {
	StartTime       int64
	EndTime         int64
	StartPrice      decimal.Decimal
	InitialEndPrice decimal.Decimal
	PriceBase       decimal.Decimal
}

func (EpochCompounding) schedule() {}
func (ContinuousDecay) schedule()  {}

// ValidateConfig checks the invariants every market configuration must hold.
func ValidateConfig(cfg model.MarketConfig) error {
	if !cfg.PriceBase.IsPositive() {
		return fmt.Errorf("%w: price base %s must be positive", ErrInvariant, cfg.PriceBase)
	}
	if cfg.EndTime < cfg.StartTime {
		return fmt.Errorf("%w: end time %d before start time %d", ErrInvariant, cfg.EndTime, cfg.StartTime)
	}
	return nil
}

// ScheduleOf validates cfg and returns its market-type variant.
func ScheduleOf(cfg model.MarketConfig) (Schedule, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if cfg.MarketType.IsEpochCompounding() {
		return EpochCompounding{
			StartTime:         cfg.StartTime,
			EndTime:           cfg.EndTime,
			StartPrice:        cfg.StartPrice,
			MarketAPY:         cfg.MarketAPY,
			MarketSolPrice:    cfg.MarketSolPrice,
			MarketEndPrice:    cfg.MarketEndPrice,
			LastUpdateEpoch:   cfg.LastUpdateEpoch,
			LastUpdateTime:    cfg.LastUpdateTime,
			StartEpoch:        cfg.StartEpoch,
			UpdateSkipTime:    cfg.UpdateSkipTime,
			CompoundingPeriod: cfg.CompoundingPeriod,
			PriceBase:         cfg.PriceBase,
		}, nil
	}

	return ContinuousDecay{
		StartTime:       cfg.StartTime,
		EndTime:         cfg.EndTime,
		StartPrice:      cfg.StartPrice,
		InitialEndPrice: cfg.InitialEndPrice,
		PriceBase:       cfg.PriceBase,
	}, nil
}
