package lending

import (
	"math/big"

	"riskpool/crypto"
	"riskpool/fixedpoint"
)

// DebtCoeff is the compounding factor debt-token balances are scaled by
// to obtain the underlying-denominated compounded debt: compounded =
// debt_token_balance * borrower_ar (spec.md §4.3). It is simply the
// reserve's current borrower_ar index.
func DebtCoeff(r *Reserve) fixedpoint.Fixed {
	return r.BorrowerAR
}

// CollatCoeff computes the s-token coefficient used to discount supplied
// collateral into underlying units, grounded on the reference
// implementation's get_collat_coeff: when the reserve has no
// outstanding s-token supply the coefficient is defined as 1 (nothing to
// scale); otherwise it folds the underlying balance already sitting in
// the reserve together with compounded debt still owed to depositors,
// divided across the s-token supply (spec.md §4.3).
func CollatCoeff(r *Reserve, sTokenSupply, debtTokenSupply *big.Int) (fixedpoint.Fixed, error) {
	if sTokenSupply == nil || sTokenSupply.Sign() == 0 {
		return fixedpoint.One, nil
	}
	compoundedDebt, ok := r.LenderAR.MulInt(debtTokenSupply)
	if !ok {
		return fixedpoint.Fixed{}, ErrCollateralCoeffMath
	}
	numerator := new(big.Int).Add(r.STokenUnderlyingBalance, compoundedDebt)
	coeff, ok := fixedpoint.FromRational(numerator, sTokenSupply)
	if !ok {
		return fixedpoint.Fixed{}, ErrCollateralCoeffMath
	}
	return coeff, nil
}

// RefreshReserve advances lender_ar/borrower_ar and recomputes
// lender_ir/borrower_ir in place, subject to the timestamp_window
// batching rule (spec.md §4.2). totalDebt is the reserve's current
// compounded debt balance (debt_token_supply * borrower_ar), used to
// compute the utilization that sets the rates applied over Δt.
func RefreshReserve(r *Reserve, params IRParams, utilCapBps uint32, timestampWindowSeconds, now uint64, totalDebt *big.Int) error {
	if !ShouldAccrue(r.LastUpdateTimestamp, now, timestampWindowSeconds) {
		return nil
	}
	deltaSeconds := now - r.LastUpdateTimestamp

	u, err := Utilization(totalDebt, r.STokenUnderlyingBalance, utilCapBps)
	if err != nil {
		return err
	}
	borrowerIR, err := BorrowerRate(u, utilCapBps, params)
	if err != nil {
		return err
	}
	lenderIR, err := LenderRate(borrowerIR, u, params.ScalingCoeffBps)
	if err != nil {
		return err
	}

	newBorrowerAR, err := AccrueIndex(r.BorrowerAR, borrowerIR, deltaSeconds)
	if err != nil {
		return err
	}
	newLenderAR, err := AccrueIndex(r.LenderAR, lenderIR, deltaSeconds)
	if err != nil {
		return err
	}

	r.BorrowerAR = newBorrowerAR
	r.LenderAR = newLenderAR
	r.BorrowerIR = borrowerIR
	r.LenderIR = lenderIR
	r.LastUpdateTimestamp = now
	return nil
}

// NewReserve constructs a reserve in its initial, never-borrowed state:
// both accrued-rate indices start at D (spec.md §3 invariant "lender_ar,
// borrower_ar >= D").
func NewReserve(id uint8, asset crypto.Address, variant ReserveVariant, cfg ReserveConfiguration) *Reserve {
	return &Reserve{
		ID:                      id,
		Asset:                   asset,
		Variant:                 variant,
		Configuration:           cfg,
		LenderAR:                fixedpoint.One,
		BorrowerAR:              fixedpoint.One,
		LenderIR:                fixedpoint.Zero,
		BorrowerIR:              fixedpoint.Zero,
		STokenUnderlyingBalance: big.NewInt(0),
		ProtocolFee:             big.NewInt(0),
	}
}
