// Package fixedpoint implements the signed 128-bit fixed-denominator
// rational used throughout the lending engine for prices, rates, and
// coefficients. All arithmetic truncates toward zero and reports overflow
// through a boolean ok result rather than panicking, so callers can
// translate a failed operation into the engine's MathOverflow error.
package fixedpoint

import "math/big"

// Denominator is the fixed-point scale (D in spec.md §3).
const Denominator = 1_000_000_000

// PercentageFactor is the basis-points denominator used by from_percentage.
const PercentageFactor = 10_000

var (
	denom = big.NewInt(Denominator)

	// maxInt128 / minInt128 bound every Fixed's inner value to the signed
	// 128-bit range so overflow is detected rather than silently wrapping
	// the way plain big.Int arithmetic would.
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Fixed is a signed rational with denominator Denominator.
type Fixed struct {
	inner *big.Int
}

// Zero is the additive identity.
var Zero = Fixed{inner: big.NewInt(0)}

// One is the multiplicative identity (1.0 in fixed-point).
var One = Fixed{inner: new(big.Int).Set(denom)}

func inRange(v *big.Int) bool {
	return v.Cmp(minInt128) >= 0 && v.Cmp(maxInt128) <= 0
}

// FromInner wraps a raw scaled integer, failing if it falls outside the
// signed 128-bit range.
func FromInner(v *big.Int) (Fixed, bool) {
	if v == nil || !inRange(v) {
		return Fixed{}, false
	}
	return Fixed{inner: new(big.Int).Set(v)}, true
}

// MustFromInner is FromInner but panics on failure; intended for
// compile-time-known constants only.
func MustFromInner(v int64) Fixed {
	f, ok := FromInner(big.NewInt(v))
	if !ok {
		panic("fixedpoint: constant out of range")
	}
	return f
}

// FromInt lifts a plain integer into fixed-point (n -> n * D).
func FromInt(n int64) (Fixed, bool) {
	scaled := new(big.Int).Mul(big.NewInt(n), denom)
	return FromInner(scaled)
}

// FromPercentage converts basis points (0..10000 representing 0%..100%,
// though larger values are permitted for >100% quantities such as
// liq_bonus) into fixed-point: from_percentage(bps) = from_rational(bps, 10000).
func FromPercentage(bps int64) (Fixed, bool) {
	return FromRational(big.NewInt(bps), big.NewInt(PercentageFactor))
}

// FromRational builds num/den in fixed-point, truncating toward zero.
func FromRational(num, den *big.Int) (Fixed, bool) {
	if num == nil || den == nil || den.Sign() == 0 {
		return Fixed{}, false
	}
	scaled := new(big.Int).Mul(num, denom)
	scaled.Quo(scaled, den)
	return FromInner(scaled)
}

// Inner returns the raw scaled integer (read-only view).
func (f Fixed) Inner() *big.Int {
	if f.inner == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(f.inner)
}

// Sign returns -1, 0, or 1.
func (f Fixed) Sign() int {
	if f.inner == nil {
		return 0
	}
	return f.inner.Sign()
}

// IsNegative reports whether f < 0.
func (f Fixed) IsNegative() bool { return f.Sign() < 0 }

// IsPositive reports whether f > 0.
func (f Fixed) IsPositive() bool { return f.Sign() > 0 }

// Cmp compares f to other.
func (f Fixed) Cmp(other Fixed) int {
	return f.Inner().Cmp(other.Inner())
}

// Add returns f + other, failing on overflow.
func (f Fixed) Add(other Fixed) (Fixed, bool) {
	return FromInner(new(big.Int).Add(f.Inner(), other.Inner()))
}

// Sub returns f - other, failing on overflow.
func (f Fixed) Sub(other Fixed) (Fixed, bool) {
	return FromInner(new(big.Int).Sub(f.Inner(), other.Inner()))
}

// Neg returns -f.
func (f Fixed) Neg() (Fixed, bool) {
	return FromInner(new(big.Int).Neg(f.Inner()))
}

// Abs returns |f|.
func (f Fixed) Abs() Fixed {
	v := f.Inner()
	if v.Sign() < 0 {
		v.Neg(v)
	}
	out, _ := FromInner(v)
	return out
}

// Min returns the smaller of f and other.
func (f Fixed) Min(other Fixed) Fixed {
	if f.Cmp(other) <= 0 {
		return f
	}
	return other
}

// Max returns the larger of f and other.
func (f Fixed) Max(other Fixed) Fixed {
	if f.Cmp(other) >= 0 {
		return f
	}
	return other
}

// Mul returns f * other, truncated toward zero, failing on overflow.
func (f Fixed) Mul(other Fixed) (Fixed, bool) {
	product := new(big.Int).Mul(f.Inner(), other.Inner())
	product.Quo(product, denom)
	return FromInner(product)
}

// CheckedMul is an alias for Mul kept for call-site readability where the
// spec names the operation explicitly (checked_mul in the original source).
func (f Fixed) CheckedMul(other Fixed) (Fixed, bool) { return f.Mul(other) }

// Div returns f / other, truncated toward zero, failing on overflow or
// division by zero.
func (f Fixed) Div(other Fixed) (Fixed, bool) {
	if other.Sign() == 0 {
		return Fixed{}, false
	}
	scaled := new(big.Int).Mul(f.Inner(), denom)
	scaled.Quo(scaled, other.Inner())
	return FromInner(scaled)
}

// MulInt multiplies a raw integer balance by f, truncating toward zero:
// result = floor_or_trunc(amount * f / D). Used to convert scaled token
// units into underlying amounts via an accrued-rate coefficient.
func (f Fixed) MulInt(amount *big.Int) (*big.Int, bool) {
	if amount == nil {
		return nil, false
	}
	product := new(big.Int).Mul(amount, f.Inner())
	product.Quo(product, denom)
	if !inRange(product) {
		return nil, false
	}
	return product, true
}

// RecipMulInt computes amount * D / f.inner, i.e. dividing the raw integer
// by f. Used to convert an underlying amount back into scaled token units.
func (f Fixed) RecipMulInt(amount *big.Int) (*big.Int, bool) {
	if amount == nil || f.Sign() == 0 {
		return nil, false
	}
	scaled := new(big.Int).Mul(amount, denom)
	scaled.Quo(scaled, f.Inner())
	if !inRange(scaled) {
		return nil, false
	}
	return scaled, true
}

// ToPrecision re-expresses f at a different decimal precision, returning a
// plain integer: floor_or_trunc(f.inner * 10^decimals / D).
func (f Fixed) ToPrecision(decimals uint32) (*big.Int, bool) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	out := new(big.Int).Mul(f.Inner(), scale)
	out.Quo(out, denom)
	if !inRange(out) {
		return nil, false
	}
	return out, true
}

// String renders the fixed-point value for diagnostics.
func (f Fixed) String() string {
	return new(big.Rat).SetFrac(f.Inner(), denom).FloatString(9)
}
