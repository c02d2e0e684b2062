package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseFare     = 5.0
	DefaultRatePerKm    = 2.0
	DefaultPoolDiscount = 0.8
	MaxSurge            = 2.0
)

// FareCalculator prices a seat in a pool. It holds no mutable state and is
// safe for concurrent use.
type FareCalculator struct {
	baseFare     float64
	ratePerKm    float64
	poolDiscount float64
}

// NewFareCalculator creates a calculator with the default tariff.
func NewFareCalculator() *FareCalculator {
	return NewFareCalculatorWithRates(DefaultBaseFare, DefaultRatePerKm, DefaultPoolDiscount)
}

// NewFareCalculatorWithRates creates a calculator with a custom tariff.
func NewFareCalculatorWithRates(baseFare, ratePerKm, poolDiscount float64) *FareCalculator {
	return &FareCalculator{
		baseFare:     baseFare,
		ratePerKm:    ratePerKm,
		poolDiscount: poolDiscount,
	}
}

// Distance is the haversine distance between two points in kilometers.
func (fc *FareCalculator) Distance(p1, p2 Coordinate) float64 {
	return p1.DistanceTo(p2)
}

// Fare is (base + km*rate) * surge, discounted when the seat is shared,
// rounded to cents.
func (fc *FareCalculator) Fare(distanceKm, surgeMultiplier float64, passengerCount int) float64 {
	fare := decimal.NewFromFloat(fc.baseFare).
		Add(decimal.NewFromFloat(distanceKm).Mul(decimal.NewFromFloat(fc.ratePerKm))).
		Mul(decimal.NewFromFloat(surgeMultiplier))

	if passengerCount > 1 {
		fare = fare.Mul(decimal.NewFromFloat(fc.poolDiscount))
	}

	return fare.Round(2).InexactFloat64()
}

// SurgeMultiplier maps demand over supply onto the surge tiers.
func (fc *FareCalculator) SurgeMultiplier(demand, supply int) float64 {
	if supply == 0 {
		return MaxSurge
	}
	ratio := float64(demand) / float64(supply)
	switch {
	case ratio > 2:
		return 1.5
	case ratio > 1.5:
		return 1.25
	default:
		return 1.0
	}
}

func (fc *FareCalculator) BaseFare() float64  { return fc.baseFare }
func (fc *FareCalculator) RatePerKm() float64 { return fc.ratePerKm }

// PricingLog records how a membership fare was derived. It is written in the
// same transaction as the join it prices.
type PricingLog struct {
	PoolID          string
	PassengerID     string
	BaseFare        float64
	DistanceKm      float64
	SurgeMultiplier float64
	PassengerCount  int
	TotalFare       float64
	CalculatedAt    time.Time
}
