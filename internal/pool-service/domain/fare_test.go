package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFare(t *testing.T) {
	fc := NewFareCalculator()

	assert.Equal(t, DefaultBaseFare, fc.Fare(0, 1.0, 1))
	assert.Equal(t, 25.0, fc.Fare(10, 1.0, 1))
	assert.Equal(t, 30.0, fc.Fare(10, 1.2, 1))
	assert.Equal(t, 24.0, fc.Fare(10, 1.2, 3))
	assert.Equal(t, 24.0, fc.Fare(10, 1.2, 2))
}

func TestFare_LinearInDistance(t *testing.T) {
	fc := NewFareCalculator()

	step := fc.Fare(2, 1.0, 1) - fc.Fare(1, 1.0, 1)
	for d := 1.0; d < 10; d++ {
		assert.InDelta(t, step, fc.Fare(d+1, 1.0, 1)-fc.Fare(d, 1.0, 1), 1e-9)
	}
}

func TestFare_RoundsToCents(t *testing.T) {
	fc := NewFareCalculator()

	// (5 + 1.2345*2) * 1.0 = 7.469
	assert.Equal(t, 7.47, fc.Fare(1.2345, 1.0, 1))
}

func TestSurgeMultiplier(t *testing.T) {
	fc := NewFareCalculator()

	tests := []struct {
		demand, supply int
		want           float64
	}{
		{demand: 10, supply: 0, want: 2.0},
		{demand: 0, supply: 0, want: 2.0},
		{demand: 5, supply: 2, want: 1.5},
		{demand: 4, supply: 2, want: 1.25},
		{demand: 7, supply: 4, want: 1.25},
		{demand: 3, supply: 2, want: 1.0},
		{demand: 1, supply: 5, want: 1.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fc.SurgeMultiplier(tt.demand, tt.supply), "demand=%d supply=%d", tt.demand, tt.supply)
	}
}

func TestSurgeMultiplier_MonotoneInRatio(t *testing.T) {
	fc := NewFareCalculator()

	prev := 0.0
	for demand := 0; demand <= 40; demand++ {
		got := fc.SurgeMultiplier(demand, 10)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestDistance(t *testing.T) {
	fc := NewFareCalculator()
	a := MustCoordinate(12.97, 77.59)
	b := MustCoordinate(13.1989, 77.7068)

	assert.Zero(t, fc.Distance(a, a))
	assert.InDelta(t, fc.Distance(a, b), fc.Distance(b, a), 1e-12)
	assert.InDelta(t, 28.3, fc.Distance(a, b), 0.5)
}

func TestNewCoordinate_Validation(t *testing.T) {
	_, err := NewCoordinate(91, 0)
	assert.ErrorIs(t, err, ErrInvalidLatitude)

	_, err = NewCoordinate(0, -181)
	assert.ErrorIs(t, err, ErrInvalidLongitude)

	_, err = NewCoordinate(0, 0)
	assert.NoError(t, err)
}
