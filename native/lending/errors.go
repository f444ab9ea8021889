package lending

import "errors"

// Error taxonomy (spec.md §7). Every fallible step returns the most
// specific variant; nothing is downgraded or swallowed except the
// documented no-op branches in RefreshReserve.
var (
	// Authorization
	ErrUnauthorized   = errors.New("lending: unauthorized")
	ErrPaused         = errors.New("lending: paused")
	ErrGracePeriod    = errors.New("lending: grace period active")
	ErrNoPermissioned = errors.New("lending: caller lacks required permission")

	// Input validation
	ErrMustBePositive              = errors.New("lending: amount must be positive")
	ErrInvalidAmount               = errors.New("lending: invalid amount")
	ErrMustBeLtePercentageFactor   = errors.New("lending: value must be <= 10000 bps")
	ErrMustBeLtPercentageFactor    = errors.New("lending: value must be < 10000 bps")
	ErrMustBeGtPercentageFactor    = errors.New("lending: value must be > 10000 bps")
	ErrUserAssetsLimitExceeded     = errors.New("lending: user assets limit exceeded")
	ErrNoReserveExistForAsset      = errors.New("lending: no reserve for asset")
	ErrReserveAlreadyInitialized   = errors.New("lending: reserve already initialized")
	ErrReservesMaxCapacityExceeded = errors.New("lending: reserve capacity exceeded")

	// State
	ErrNoActiveReserve             = errors.New("lending: reserve not active")
	ErrReserveFrozen               = errors.New("lending: reserve frozen")
	ErrBorrowingNotEnabled         = errors.New("lending: borrowing not enabled")
	ErrBorrowCollateralSameAsset   = errors.New("lending: cannot borrow an asset used as collateral")
	ErrUtilizationCapExceeded      = errors.New("lending: utilization cap exceeded")
	ErrUserConfigNotExists         = errors.New("lending: user configuration does not exist")
	ErrCollateralNotCoverNewBorrow = errors.New("lending: collateral does not cover new borrow")
	ErrBadPosition                 = errors.New("lending: position is underwater")
	ErrGoodPosition                = errors.New("lending: position is healthy")
	ErrMustNotHaveDebt             = errors.New("lending: account must not have debt in this reserve")
	ErrNotEnoughAvailableUserBalance = errors.New("lending: not enough available user balance")
	ErrNotEnoughCollateral         = errors.New("lending: not enough collateral to cover debt")

	// Math
	ErrMathOverflow        = errors.New("lending: math overflow")
	ErrCalcAccountDataMath = errors.New("lending: account data math error")
	ErrLiquidateMath       = errors.New("lending: liquidation math error")
	ErrCollateralCoeffMath = errors.New("lending: collateral coefficient math error")
	ErrDebtCoeffMath       = errors.New("lending: debt coefficient math error")
	ErrValidateBorrowMath  = errors.New("lending: borrow validation math error")
	ErrAccruedRateMath     = errors.New("lending: accrued rate math error")

	// Oracle
	ErrNoPriceForAsset   = errors.New("lending: no price for asset")
	ErrInvalidAssetPrice = errors.New("lending: invalid asset price")
	ErrAssetPriceMath    = errors.New("lending: asset price math error")

	// External
	ErrFlashLoanReceiver = errors.New("lending: flash loan receiver rejected callback")
)
