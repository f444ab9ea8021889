package lending

import (
	"math/big"

	"riskpool/crypto"
	"riskpool/fixedpoint"
)

// ReserveKind distinguishes interest-bearing fungible reserves from
// pass-through real-world-asset reserves (spec.md §3, ReserveType).
type ReserveKind uint8

const (
	// ReserveFungible reserves mint s-tokens/debt-tokens and compound
	// interest through lender_ar/borrower_ar.
	ReserveFungible ReserveKind = iota
	// ReserveRWA reserves are held 1:1 as collateral without receipt-token
	// compounding (spec.md Non-goals: "non-fungible collateral except as
	// pass-through real-world-asset reserves").
	ReserveRWA
)

// ReserveVariant captures the reserve's token bindings. DebtTokenID is
// zero for RWA reserves; Deposit and CalcAccountData still resolve
// STokenID for an RWA reserve to record its 1:1 collateral units.
type ReserveVariant struct {
	Kind        ReserveKind
	STokenID    crypto.Address
	DebtTokenID crypto.Address
}

// ReserveConfiguration groups the governance-controlled parameters of a
// reserve (spec.md §3).
type ReserveConfiguration struct {
	Active           bool
	Frozen           bool
	BorrowingEnabled bool
	LiqBonusBps      uint32 // > 10000
	LiqCap           *big.Int
	UtilCapBps       uint32 // < 10000
	DiscountBps      uint32 // <= 10000
	LiquidationOrder uint32
}

// Reserve is the per-asset accrual and configuration state (spec.md §3).
type Reserve struct {
	ID                      uint8
	Asset                   crypto.Address
	Variant                 ReserveVariant
	Configuration           ReserveConfiguration
	LenderAR                fixedpoint.Fixed
	BorrowerAR              fixedpoint.Fixed
	LenderIR                fixedpoint.Fixed
	BorrowerIR              fixedpoint.Fixed
	LastUpdateTimestamp     uint64
	STokenUnderlyingBalance *big.Int
	ProtocolFee             *big.Int
}

// Clone returns a deep copy so callers may mutate without aliasing shared
// storage state mid-call.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Configuration.LiqCap != nil {
		clone.Configuration.LiqCap = new(big.Int).Set(r.Configuration.LiqCap)
	}
	if r.STokenUnderlyingBalance != nil {
		clone.STokenUnderlyingBalance = new(big.Int).Set(r.STokenUnderlyingBalance)
	}
	if r.ProtocolFee != nil {
		clone.ProtocolFee = new(big.Int).Set(r.ProtocolFee)
	}
	return &clone
}

// PercentageFactor is the basis-points denominator (spec.md glossary).
const PercentageFactor = 10_000

// IRParams are the global interest-rate model coefficients (spec.md §3).
type IRParams struct {
	AlphaBps        uint32
	InitialRateBps  uint32
	MaxRateBps      uint32
	ScalingCoeffBps uint32
}

// Validate enforces the IRParams invariants: initial_rate <= 10000 <
// max_rate; scaling_coeff < 10000.
func (p IRParams) Validate() error {
	if p.InitialRateBps > PercentageFactor {
		return ErrMustBeLtePercentageFactor
	}
	if p.MaxRateBps <= PercentageFactor {
		return ErrMustBeGtPercentageFactor
	}
	if p.ScalingCoeffBps >= PercentageFactor {
		return ErrMustBeLtPercentageFactor
	}
	return nil
}

// PoolConfig groups pool-wide operational parameters (spec.md §3).
type PoolConfig struct {
	BaseAsset                 crypto.Address
	BaseAssetDecimals         uint32
	FlashLoanFeeBps           uint32
	InitialHealthBps          uint32
	TimestampWindowSeconds    uint64
	GracePeriodSeconds        uint64
	UserAssetsLimit           uint32
	MinCollatAmount           *big.Int
	MinDebtAmount             *big.Int
	LiquidationProtocolFeeBps uint32
}

// CollateralLeg is one reserve's contribution to a liquidation plan,
// produced only when for_liquidation is true (spec.md §4.6).
type CollateralLeg struct {
	Asset            crypto.Address
	Reserve          *Reserve
	STokenBalance    *big.Int
	Compounded       *big.Int
	Coeff            fixedpoint.Fixed
	Discount         fixedpoint.Fixed
	LiquidationOrder uint32
}

// DebtLeg is one reserve's contribution to the liquidation debt queue.
type DebtLeg struct {
	Asset            crypto.Address
	Reserve          *Reserve
	DebtTokenBalance *big.Int
	CompoundedDebt   *big.Int
	DebtCoeff        fixedpoint.Fixed
}

// AccountData is the ephemeral, per-call valuation of a user's position
// (spec.md §3).
type AccountData struct {
	DiscountedCollateral *big.Int
	Debt                 *big.Int
	NPV                  *big.Int
	LiqCollat            []CollateralLeg
	LiqDebt              []DebtLeg
}

// IsGood reports whether the position is solvent (npv > 0).
func (a AccountData) IsGood() bool {
	return a.NPV != nil && a.NPV.Sign() > 0
}

func zeroAccountData() AccountData {
	return AccountData{
		DiscountedCollateral: big.NewInt(0),
		Debt:                 big.NewInt(0),
		NPV:                  big.NewInt(0),
	}
}
