package lending

import (
	"math/big"

	"github.com/shopspring/decimal"

	"riskpool/fixedpoint"
)

// FormatBaseAmount renders an integer amount expressed at
// baseAssetDecimals as a human-readable decimal string, for admin/report
// views only — all accounting stays in fixedpoint/big.Int (grounded on
// the amortization schedule formatting in
// jiangshenghai57-andy-warhol/amortization, which keeps the same split
// between integer-cents accounting and decimal.Decimal presentation).
func FormatBaseAmount(amount *big.Int, decimals uint32) string {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatRate renders a fixedpoint.Fixed interest rate or coefficient as
// a percentage string with four decimal places.
func FormatRate(rate fixedpoint.Fixed) string {
	asRat := decimal.NewFromBigInt(rate.Inner(), -9)
	return asRat.Mul(decimal.NewFromInt(100)).StringFixed(4) + "%"
}

// toFloat64 lowers a fixedpoint.Fixed to a float64, losing precision
// deliberately — this is only ever used to feed prometheus gauges, never
// accounting.
func toFloat64(f fixedpoint.Fixed) float64 {
	asRat := decimal.NewFromBigInt(f.Inner(), -9)
	value, _ := asRat.Float64()
	return value
}

// ReserveSummary is a presentation-layer snapshot of a reserve's
// headline figures, formatted for admin dashboards and CLI reports.
type ReserveSummary struct {
	Asset                   string
	UtilizationPct          string
	BorrowerRatePct         string
	LenderRatePct           string
	STokenUnderlyingBalance string
	ProtocolFee             string
}

// Summarize builds a ReserveSummary from a reserve's current state.
func Summarize(r *Reserve, utilization fixedpoint.Fixed, decimals uint32) ReserveSummary {
	return ReserveSummary{
		Asset:                   r.Asset.String(),
		UtilizationPct:          FormatRate(utilization),
		BorrowerRatePct:         FormatRate(r.BorrowerIR),
		LenderRatePct:           FormatRate(r.LenderIR),
		STokenUnderlyingBalance: FormatBaseAmount(r.STokenUnderlyingBalance, decimals),
		ProtocolFee:             FormatBaseAmount(r.ProtocolFee, decimals),
	}
}
