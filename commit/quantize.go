package commit

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

const (
	// BasisPointScale converts a rate in [0,1] to basis points.
	BasisPointScale = 10_000
	// MilliUnitScale converts a cost to milli-units.
	MilliUnitScale = 1_000
)

var ErrOutOfRange = errors.New("commit: value out of range")

// Quantizer converts floating-point measurements into the scaled integers
// allowed in commitment payloads. Rounding is half-to-even.
type Quantizer struct {
	RateScale int64
	CostScale int64
}

// DefaultQuantizer uses basis points for rates and milli-units for costs.
func DefaultQuantizer() Quantizer {
	return Quantizer{RateScale: BasisPointScale, CostScale: MilliUnitScale}
}

// Rate quantizes a fraction in [0,1].
func (q Quantizer) Rate(r float64) (int64, error) {
	if math.IsNaN(r) || r < 0 || r > 1 {
		return 0, fmt.Errorf("%w: rate %v not in [0,1]", ErrOutOfRange, r)
	}
	return scale(r, q.rateScale())
}

// Cost quantizes a non-negative finite cost.
func (q Quantizer) Cost(c float64) (int64, error) {
	if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
		return 0, fmt.Errorf("%w: cost %v", ErrOutOfRange, c)
	}
	return scale(c, q.costScale())
}

func (q Quantizer) rateScale() int64 {
	if q.RateScale <= 0 {
		return BasisPointScale
	}
	return q.RateScale
}

func (q Quantizer) costScale() int64 {
	if q.CostScale <= 0 {
		return MilliUnitScale
	}
	return q.CostScale
}

func scale(v float64, s int64) (int64, error) {
	x := math.RoundToEven(v * float64(s))
	if x >= math.MaxInt64 || x <= math.MinInt64 {
		return 0, fmt.Errorf("%w: %v overflows at scale %d", ErrOutOfRange, v, s)
	}
	return int64(x), nil
}

// RateFraction is an exact rate numerator/denominator, for when basis-point
// rounding would lose information. Invariant: 0 <= Numerator <= Denominator, Denominator > 0.
type RateFraction struct {
	Numerator   int64 `json:"numerator"`
	Denominator int64 `json:"denominator"`
}

// NewRateFraction validates and returns a fraction as given (not reduced).
func NewRateFraction(num, den int64) (RateFraction, error) {
	f := RateFraction{Numerator: num, Denominator: den}
	if err := f.Validate(); err != nil {
		return RateFraction{}, err
	}
	return f, nil
}

func (f RateFraction) Validate() error {
	if f.Denominator <= 0 {
		return fmt.Errorf("%w: denominator %d must be positive", ErrOutOfRange, f.Denominator)
	}
	if f.Numerator < 0 || f.Numerator > f.Denominator {
		return fmt.Errorf("%w: %d/%d not in [0,1]", ErrOutOfRange, f.Numerator, f.Denominator)
	}
	return nil
}

// Reduced returns the fraction in lowest terms. 0/n reduces to 0/1.
func (f RateFraction) Reduced() RateFraction {
	if f.Denominator <= 0 {
		return f
	}
	g := new(big.Int).GCD(nil, nil, big.NewInt(f.Numerator), big.NewInt(f.Denominator)).Int64()
	if g <= 1 {
		if f.Numerator == 0 {
			return RateFraction{Numerator: 0, Denominator: 1}
		}
		return f
	}
	return RateFraction{Numerator: f.Numerator / g, Denominator: f.Denominator / g}
}

// BasisPoints rounds the fraction to basis points, half-to-even, using exact
// integer arithmetic.
func (f RateFraction) BasisPoints() (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	n := new(big.Int).Mul(big.NewInt(f.Numerator), big.NewInt(BasisPointScale))
	d := big.NewInt(f.Denominator)
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	twice := new(big.Int).Lsh(r, 1)
	switch twice.Cmp(d) {
	case 1:
		q.Add(q, big.NewInt(1))
	case 0:
		if q.Bit(0) == 1 {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64(), nil
}
