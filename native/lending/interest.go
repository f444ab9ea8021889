package lending

import (
	"math/big"

	"riskpool/fixedpoint"
)

// AlphaDenominator scales IRParams.AlphaBps into a convexity exponent: an
// alpha of 200 means "square", 300 means "cube", and so on. Mirrors the
// ALPHA_DENOMINATOR=100 constant carried in the reference accounting
// model (spec.md §4.2).
const AlphaDenominator = 100

// SecondsPerYear is the accrual-rate denominator for "Δt / year_seconds"
// (spec.md §4.2).
const SecondsPerYear = 365 * 24 * 60 * 60

// alphaExponent turns AlphaBps into the integer power used by the convex
// utilization curve. Values below AlphaDenominator still floor to a
// linear (exponent 1) curve rather than faulting, since spec.md only
// constrains IR(0) and IR(util_cap), not alpha's own range.
func alphaExponent(alphaBps uint32) int {
	exp := int(alphaBps / AlphaDenominator)
	if exp < 1 {
		exp = 1
	}
	return exp
}

// Utilization computes U = totalDebt / (totalDebt + underlyingBalance),
// clamped to [0, utilCapBps/10000] (spec.md §4.2). A reserve with no
// debt and no supply reports zero utilization.
func Utilization(totalDebt, underlyingBalance *big.Int, utilCapBps uint32) (fixedpoint.Fixed, error) {
	denom := new(big.Int).Add(totalDebt, underlyingBalance)
	if denom.Sign() <= 0 {
		return fixedpoint.Zero, nil
	}
	u, ok := fixedpoint.FromRational(totalDebt, denom)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	cap, ok := fixedpoint.FromPercentage(int64(utilCapBps))
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	if u.Cmp(cap) > 0 {
		return cap, nil
	}
	if u.IsNegative() {
		return fixedpoint.Zero, nil
	}
	return u, nil
}

// BorrowerRate evaluates the instantaneous borrower IR at utilization u
// against the pool's utilization cap: a monotone convex interpolation
// between initial_rate (at u=0) and max_rate (at u=util_cap), per
// spec.md §4.2.
func BorrowerRate(u fixedpoint.Fixed, utilCapBps uint32, params IRParams) (fixedpoint.Fixed, error) {
	if err := params.Validate(); err != nil {
		return fixedpoint.Fixed{}, err
	}
	initial, ok := fixedpoint.FromPercentage(int64(params.InitialRateBps))
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	maxRate, ok := fixedpoint.FromPercentage(int64(params.MaxRateBps))
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	if utilCapBps == 0 {
		return initial, nil
	}
	cap, ok := fixedpoint.FromPercentage(int64(utilCapBps))
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	ratio, ok := u.Div(cap)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	if ratio.IsNegative() {
		ratio = fixedpoint.Zero
	}
	one := fixedpoint.One
	if ratio.Cmp(one) > 0 {
		ratio = one
	}
	curved := ratio
	for i := 1; i < alphaExponent(params.AlphaBps); i++ {
		next, ok := curved.CheckedMul(ratio)
		if !ok {
			return fixedpoint.Fixed{}, ErrAccruedRateMath
		}
		curved = next
	}
	span, ok := maxRate.Sub(initial)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	addend, ok := span.CheckedMul(curved)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	rate, ok := initial.Add(addend)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	return rate, nil
}

// LenderRate implements "lender_ir = borrower_ir * scaling_coeff/10000 *
// U" (spec.md §4.2): lenders earn a utilization-weighted fraction of
// what borrowers pay.
func LenderRate(borrowerIR, u fixedpoint.Fixed, scalingCoeffBps uint32) (fixedpoint.Fixed, error) {
	scaling, ok := fixedpoint.FromPercentage(int64(scalingCoeffBps))
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	scaled, ok := borrowerIR.CheckedMul(scaling)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	rate, ok := scaled.CheckedMul(u)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	return rate, nil
}

// AccrueIndex advances an accrued-rate index over elapsed seconds:
// ar_new = ar_old * (1 + ir * Δt / year_seconds) (spec.md §4.2).
func AccrueIndex(ar, ir fixedpoint.Fixed, deltaSeconds uint64) (fixedpoint.Fixed, error) {
	if deltaSeconds == 0 {
		return ar, nil
	}
	elapsedOverYear, ok := fixedpoint.FromRational(
		new(big.Int).SetUint64(deltaSeconds),
		big.NewInt(SecondsPerYear),
	)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	growth, ok := ir.CheckedMul(elapsedOverYear)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	factor, ok := fixedpoint.One.Add(growth)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	next, ok := ar.CheckedMul(factor)
	if !ok {
		return fixedpoint.Fixed{}, ErrAccruedRateMath
	}
	return next, nil
}

// ShouldAccrue reports whether enough time has elapsed since
// lastUpdate for a refresh to take effect, per the timestamp_window
// batching rule in spec.md §4.2.
func ShouldAccrue(lastUpdate, now uint64, timestampWindowSeconds uint64) bool {
	if now <= lastUpdate {
		return false
	}
	return now-lastUpdate >= timestampWindowSeconds
}
