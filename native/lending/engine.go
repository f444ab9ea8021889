package lending

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"riskpool/crypto"
	"riskpool/fixedpoint"
	nativecommon "riskpool/native/common"
	"riskpool/observability/metrics"
	"riskpool/oracle"
)

const moduleName = "lending"

// Store is the persistence collaborator the engine mutates through.
// Concrete storage backends (KV store, SQL, in-memory) implement this;
// the engine never reaches for a backend directly (spec.md §6 persisted
// state keys, generalized into Go method calls the way the teacher's
// engineState interface abstracts its own backing store).
type Store interface {
	UserConfig(ctx context.Context, user crypto.Address) (*UserConfiguration, error)
	SaveUserConfig(ctx context.Context, user crypto.Address, cfg *UserConfiguration) error

	Reserve(ctx context.Context, id uint8) (*Reserve, error)
	ReserveByAsset(ctx context.Context, asset crypto.Address) (*Reserve, error)
	SaveReserve(ctx context.Context, reserve *Reserve) error

	SToken(ctx context.Context, id crypto.Address) (SToken, error)
	DebtToken(ctx context.Context, id crypto.Address) (DebtToken, error)
	UnderlyingAsset(ctx context.Context, asset crypto.Address) (UnderlyingAsset, error)

	PoolConfig() PoolConfig
	SavePoolConfig(PoolConfig) error
	IRParams() IRParams
	SaveIRParams(IRParams) error
	Treasury() crypto.Address
	// PriceFeeds returns the currently configured feed set, keyed the same
	// way oracle.Provider keys its internal config map (spec.md §6
	// persisted state key "PriceFeed(asset)").
	PriceFeeds() map[string]oracle.AssetConfig
	// PoolAddress is the pool's own custody account: underlying assets
	// are transferred here on deposit/borrow-repay and out of it on
	// withdraw/borrow (spec.md §4.7 "reserve's backing account").
	PoolAddress() crypto.Address
	Now() uint64
}

// Engine orchestrates the pool's primary state transitions: deposit,
// withdraw, borrow, repay, liquidate, and flash loan (spec.md §4.7-4.9).
type Engine struct {
	store  Store
	pauses nativecommon.PauseView
	grace  nativecommon.GraceView
	events EventPublisher
	logger *slog.Logger
}

// NewEngine constructs an engine bound to its storage collaborator.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// SetPauses wires the pause-gate collaborator (spec.md §5 gate logic).
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetGrace wires the post-unpause grace-period collaborator.
func (e *Engine) SetGrace(g nativecommon.GraceView) { e.grace = g }

// SetLogger wires the structured logger every mutating entry point
// reports its outcome to (observability/logging.Setup).
func (e *Engine) SetLogger(logger *slog.Logger) { e.logger = logger }

// prologue implements the shared guard sequence every mutating entry
// point runs before touching state: pause gate, then grace period
// (spec.md §4.7 "All share the prologue"). Caller authentication is the
// responsibility of the transport layer (spec.md §6 — out of scope here).
func (e *Engine) prologue() error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	now := time.Unix(int64(e.store.Now()), 0)
	if err := nativecommon.GuardGrace(e.grace, now); err != nil {
		metrics.Lending().IncGracePeriodRejection(moduleName)
		return err
	}
	return nil
}

func (e *Engine) priceProvider(ctx context.Context) *oracle.Provider {
	cfg := e.store.PoolConfig()
	now := e.store.Now()
	return oracle.NewProvider(cfg.BaseAsset, cfg.BaseAssetDecimals, e.store.PriceFeeds(), func() uint64 { return now })
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrMustBePositive
	}
	return nil
}

func (e *Engine) refreshOne(ctx context.Context, reserve *Reserve) error {
	debtToken, err := e.store.DebtToken(ctx, reserve.Variant.DebtTokenID)
	if err != nil {
		return err
	}
	totalDebt := big.NewInt(0)
	if debtToken != nil {
		supply, err := debtToken.TotalSupply(ctx)
		if err != nil {
			return err
		}
		compounded, ok := reserve.BorrowerAR.MulInt(supply)
		if !ok {
			return ErrAccruedRateMath
		}
		totalDebt = compounded
	}
	irParams := e.store.IRParams()
	poolCfg := e.store.PoolConfig()
	if err := RefreshReserve(reserve, irParams, reserve.Configuration.UtilCapBps, poolCfg.TimestampWindowSeconds, e.store.Now(), totalDebt); err != nil {
		return err
	}
	e.recordReserveMetrics(reserve, totalDebt)
	return e.store.SaveReserve(ctx, reserve)
}

// recordReserveMetrics publishes the post-refresh utilization and
// accrued-rate figures for dashboards; failures here never affect
// accounting, so errors from Utilization are simply ignored.
func (e *Engine) recordReserveMetrics(reserve *Reserve, totalDebt *big.Int) {
	label := reserve.Asset.String()
	if u, err := Utilization(totalDebt, reserve.STokenUnderlyingBalance, reserve.Configuration.UtilCapBps); err == nil {
		metrics.Lending().SetUtilization(label, toFloat64(u))
	}
	metrics.Lending().SetRates(label, toFloat64(reserve.BorrowerIR), toFloat64(reserve.LenderIR))
	metrics.Lending().SetAccruedRates(label, toFloat64(reserve.LenderAR), toFloat64(reserve.BorrowerAR))
}

// Deposit supplies `amount` of asset into the pool as collateral
// (spec.md §4.7 Deposit).
func (e *Engine) Deposit(ctx context.Context, user crypto.Address, asset crypto.Address, amount *big.Int) error {
	if err := e.prologue(); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	reserve, err := e.store.ReserveByAsset(ctx, asset)
	if err != nil {
		return err
	}
	if reserve == nil {
		return ErrNoReserveExistForAsset
	}
	if err := e.refreshOne(ctx, reserve); err != nil {
		return err
	}
	if !reserve.Configuration.Active {
		return ErrNoActiveReserve
	}
	if reserve.Configuration.Frozen {
		return ErrReserveFrozen
	}

	sToken, err := e.store.SToken(ctx, reserve.Variant.STokenID)
	if err != nil {
		return err
	}
	underlying, err := e.store.UnderlyingAsset(ctx, asset)
	if err != nil {
		return err
	}

	balanceBefore, err := sToken.Balance(ctx, user)
	if err != nil {
		return err
	}

	var mintUnits *big.Int
	if reserve.Variant.Kind == ReserveRWA {
		mintUnits = new(big.Int).Set(amount)
	} else {
		sSupply, err := sToken.TotalSupply(ctx)
		if err != nil {
			return err
		}
		debtToken, err := e.store.DebtToken(ctx, reserve.Variant.DebtTokenID)
		if err != nil {
			return err
		}
		debtSupply := big.NewInt(0)
		if debtToken != nil {
			debtSupply, err = debtToken.TotalSupply(ctx)
			if err != nil {
				return err
			}
		}
		coeff, err := CollatCoeff(reserve, sSupply, debtSupply)
		if err != nil {
			return err
		}
		units, ok := coeff.RecipMulInt(amount)
		if !ok {
			return ErrCollateralCoeffMath
		}
		mintUnits = units
	}

	if err := underlying.TransferFrom(ctx, user, user, e.store.PoolAddress(), amount); err != nil {
		return err
	}
	if err := sToken.Mint(ctx, user, mintUnits); err != nil {
		return err
	}
	reserve.STokenUnderlyingBalance.Add(reserve.STokenUnderlyingBalance, amount)
	if err := e.store.SaveReserve(ctx, reserve); err != nil {
		return err
	}

	cfg, err := e.store.UserConfig(ctx, user)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = NewUserConfiguration()
	}
	poolCfg := e.store.PoolConfig()

	firstDeposit := balanceBefore == nil || balanceBefore.Sign() == 0
	if firstDeposit && !cfg.IsCollateral(reserve.ID) {
		if err := cfg.SetCollateral(reserve.ID, true, poolCfg.UserAssetsLimit); err != nil {
			return err
		}
		e.publish(newReserveUsedAsCollateralEvent(user, asset, true))
	}
	if firstDeposit {
		prices := e.priceProvider(ctx)
		compoundedBase, err := prices.ConvertToBase(ctx, asset, amount)
		if err != nil {
			return err
		}
		if poolCfg.MinCollatAmount != nil && compoundedBase.Cmp(poolCfg.MinCollatAmount) < 0 {
			return ErrNotEnoughCollateral
		}
	}
	if err := e.store.SaveUserConfig(ctx, user, cfg); err != nil {
		return err
	}
	logOperation(e.logger, "deposit", user.String(), asset.String(), amount.String(), nil)
	e.publish(newDepositEvent(user, asset, amount))
	return nil
}

// Withdraw removes `amount` (or the user's full balance, when amount is
// nil) of asset collateral, sending the underlying to `to` (spec.md §4.7
// Withdraw).
func (e *Engine) Withdraw(ctx context.Context, user, to crypto.Address, asset crypto.Address, amount *big.Int) error {
	if err := e.prologue(); err != nil {
		return err
	}
	reserve, err := e.store.ReserveByAsset(ctx, asset)
	if err != nil {
		return err
	}
	if reserve == nil {
		return ErrNoReserveExistForAsset
	}
	if err := e.refreshOne(ctx, reserve); err != nil {
		return err
	}

	sToken, err := e.store.SToken(ctx, reserve.Variant.STokenID)
	if err != nil {
		return err
	}
	underlying, err := e.store.UnderlyingAsset(ctx, asset)
	if err != nil {
		return err
	}
	sSupply, err := sToken.TotalSupply(ctx)
	if err != nil {
		return err
	}
	debtToken, err := e.store.DebtToken(ctx, reserve.Variant.DebtTokenID)
	if err != nil {
		return err
	}
	debtSupply := big.NewInt(0)
	if debtToken != nil {
		debtSupply, err = debtToken.TotalSupply(ctx)
		if err != nil {
			return err
		}
	}
	coeff, err := CollatCoeff(reserve, sSupply, debtSupply)
	if err != nil {
		return err
	}

	sBalance, err := sToken.Balance(ctx, user)
	if err != nil {
		return err
	}
	userUnderlying, ok := coeff.MulInt(sBalance)
	if !ok {
		return ErrCollateralCoeffMath
	}

	effective := userUnderlying
	if amount != nil && amount.Cmp(userUnderlying) < 0 {
		effective = amount
	}
	if err := requirePositive(effective); err != nil {
		return err
	}

	burnUnits, ok := coeff.RecipMulInt(effective)
	if !ok {
		return ErrCollateralCoeffMath
	}
	fullWithdrawal := burnUnits.Cmp(sBalance) >= 0
	if fullWithdrawal {
		burnUnits = sBalance
	}

	if err := sToken.Burn(ctx, user, burnUnits, effective, to); err != nil {
		return err
	}
	if err := underlying.Transfer(ctx, e.store.PoolAddress(), to, effective); err != nil {
		return err
	}
	reserve.STokenUnderlyingBalance.Sub(reserve.STokenUnderlyingBalance, effective)
	if err := e.store.SaveReserve(ctx, reserve); err != nil {
		return err
	}

	cfg, err := e.store.UserConfig(ctx, user)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrUserConfigNotExists
	}
	poolCfg := e.store.PoolConfig()
	if fullWithdrawal {
		if err := cfg.SetCollateral(reserve.ID, false, poolCfg.UserAssetsLimit); err != nil {
			return err
		}
		e.publish(newReserveUsedAsCollateralEvent(user, asset, false))
	}
	if err := e.store.SaveUserConfig(ctx, user, cfg); err != nil {
		return err
	}

	prices := e.priceProvider(ctx)
	account, err := CalcAccountData(ctx, e.store, prices, user, nil, false)
	if err != nil {
		return err
	}
	if account.Debt.Sign() > 0 {
		if !account.IsGood() {
			return ErrBadPosition
		}
		if poolCfg.MinCollatAmount != nil && account.DiscountedCollateral.Sign() > 0 &&
			account.DiscountedCollateral.Cmp(poolCfg.MinCollatAmount) < 0 {
			return ErrNotEnoughCollateral
		}
	}
	logOperation(e.logger, "withdraw", user.String(), asset.String(), effective.String(), nil)
	e.publish(newWithdrawEvent(user, to, asset, effective))
	return nil
}

// Borrow draws `amount` of asset as debt against the user's existing
// collateral (spec.md §4.7 Borrow).
func (e *Engine) Borrow(ctx context.Context, user crypto.Address, asset crypto.Address, amount *big.Int) error {
	if err := e.prologue(); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	reserve, err := e.store.ReserveByAsset(ctx, asset)
	if err != nil {
		return err
	}
	if reserve == nil {
		return ErrNoReserveExistForAsset
	}
	if reserve.Variant.Kind == ReserveRWA {
		return ErrBorrowingNotEnabled
	}
	if !reserve.Configuration.Active {
		return ErrNoActiveReserve
	}
	if reserve.Configuration.Frozen {
		return ErrReserveFrozen
	}
	if !reserve.Configuration.BorrowingEnabled {
		return ErrBorrowingNotEnabled
	}

	cfg, err := e.store.UserConfig(ctx, user)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = NewUserConfiguration()
	}
	if cfg.IsCollateral(reserve.ID) {
		return ErrBorrowCollateralSameAsset
	}

	debtToken, err := e.store.DebtToken(ctx, reserve.Variant.DebtTokenID)
	if err != nil {
		return err
	}
	debtSupplyBefore, err := debtToken.TotalSupply(ctx)
	if err != nil {
		return err
	}
	compoundedDebtBefore, ok := reserve.BorrowerAR.MulInt(debtSupplyBefore)
	if !ok {
		return ErrAccruedRateMath
	}
	projectedDebt := new(big.Int).Add(compoundedDebtBefore, amount)
	projectedU, err := Utilization(projectedDebt, reserve.STokenUnderlyingBalance, PercentageFactor)
	if err != nil {
		return err
	}
	cap, ok := fixedpoint.FromPercentage(int64(reserve.Configuration.UtilCapBps))
	if !ok {
		return ErrAccruedRateMath
	}
	if projectedU.Cmp(cap) > 0 {
		return ErrUtilizationCapExceeded
	}

	if err := e.refreshOne(ctx, reserve); err != nil {
		return err
	}
	debtCoeff := DebtCoeff(reserve)
	mintUnits, ok := debtCoeff.RecipMulInt(amount)
	if !ok {
		return ErrDebtCoeffMath
	}

	underlying, err := e.store.UnderlyingAsset(ctx, asset)
	if err != nil {
		return err
	}
	if err := debtToken.Mint(ctx, user, mintUnits); err != nil {
		return err
	}
	if err := underlying.Transfer(ctx, e.store.PoolAddress(), user, amount); err != nil {
		return err
	}

	poolCfg := e.store.PoolConfig()
	if err := cfg.SetBorrowing(reserve.ID, true, poolCfg.UserAssetsLimit); err != nil {
		return err
	}
	if err := e.store.SaveUserConfig(ctx, user, cfg); err != nil {
		return err
	}

	prices := e.priceProvider(ctx)
	account, err := CalcAccountData(ctx, e.store, prices, user, nil, false)
	if err != nil {
		return err
	}
	if !account.IsGood() {
		return ErrBadPosition
	}
	initialHealth, ok := fixedpoint.FromPercentage(int64(poolCfg.InitialHealthBps))
	if !ok {
		return ErrValidateBorrowMath
	}
	requiredNPV, ok := initialHealth.MulInt(account.DiscountedCollateral)
	if !ok {
		return ErrValidateBorrowMath
	}
	if account.NPV.Cmp(requiredNPV) < 0 {
		return ErrCollateralNotCoverNewBorrow
	}
	if poolCfg.MinDebtAmount != nil {
		debtBase, err := prices.ConvertToBase(ctx, asset, amount)
		if err != nil {
			return err
		}
		if debtBase.Cmp(poolCfg.MinDebtAmount) < 0 {
			return ErrInvalidAmount
		}
	}
	logOperation(e.logger, "borrow", user.String(), asset.String(), amount.String(), nil)
	e.publish(newBorrowEvent(user, asset, amount))
	return nil
}

// Repay pays down `amount` (or the full owed balance, when amount is
// nil) of the user's debt in asset (spec.md §4.7 Repay).
func (e *Engine) Repay(ctx context.Context, payer, borrower crypto.Address, asset crypto.Address, amount *big.Int) error {
	if err := e.prologue(); err != nil {
		return err
	}
	reserve, err := e.store.ReserveByAsset(ctx, asset)
	if err != nil {
		return err
	}
	if reserve == nil {
		return ErrNoReserveExistForAsset
	}
	if err := e.refreshOne(ctx, reserve); err != nil {
		return err
	}

	debtToken, err := e.store.DebtToken(ctx, reserve.Variant.DebtTokenID)
	if err != nil {
		return err
	}
	debtBalance, err := debtToken.Balance(ctx, borrower)
	if err != nil {
		return err
	}
	debtCoeff := DebtCoeff(reserve)
	owed, ok := debtCoeff.MulInt(debtBalance)
	if !ok {
		return ErrDebtCoeffMath
	}
	if owed.Sign() <= 0 {
		// repay(MAX) against a zero balance is a no-op (spec.md §8
		// "Idempotence"); an explicit positive amount with nothing owed is
		// still rejected as a usage error.
		if amount == nil {
			return nil
		}
		return ErrNotEnoughAvailableUserBalance
	}

	paid := owed
	if amount != nil && amount.Cmp(owed) < 0 {
		paid = amount
	}
	if err := requirePositive(paid); err != nil {
		return err
	}

	fullyRepaid := paid.Cmp(owed) >= 0
	burnUnits := debtBalance
	if !fullyRepaid {
		burnUnits, ok = debtCoeff.RecipMulInt(paid)
		if !ok {
			return ErrDebtCoeffMath
		}
	}

	underlying, err := e.store.UnderlyingAsset(ctx, asset)
	if err != nil {
		return err
	}
	if err := underlying.TransferFrom(ctx, payer, payer, e.store.PoolAddress(), paid); err != nil {
		return err
	}
	if err := debtToken.Burn(ctx, borrower, burnUnits); err != nil {
		return err
	}

	// Split accrued interest: the (debt_coeff - 1) fraction of what was
	// just paid above principal becomes protocol fee; the remainder backs
	// s-token supply (spec.md §4.7 Repay).
	principalPortion, interestPortion := splitPrincipalInterest(paid, debtCoeff)
	reserve.STokenUnderlyingBalance.Add(reserve.STokenUnderlyingBalance, principalPortion)
	reserve.ProtocolFee.Add(reserve.ProtocolFee, interestPortion)
	if err := e.store.SaveReserve(ctx, reserve); err != nil {
		return err
	}

	if fullyRepaid {
		cfg, err := e.store.UserConfig(ctx, borrower)
		if err != nil {
			return err
		}
		if cfg != nil {
			poolCfg := e.store.PoolConfig()
			if err := cfg.SetBorrowing(reserve.ID, false, poolCfg.UserAssetsLimit); err != nil {
				return err
			}
			if err := e.store.SaveUserConfig(ctx, borrower, cfg); err != nil {
				return err
			}
		}
	}
	logOperation(e.logger, "repay", borrower.String(), asset.String(), paid.String(), nil)
	e.publish(newRepayEvent(payer, borrower, asset, paid))
	return nil
}

// splitPrincipalInterest divides a repayment into the principal
// fraction and the interest fraction implied by debtCoeff exceeding 1
// (spec.md §4.7 Repay).
func splitPrincipalInterest(paid *big.Int, debtCoeff fixedpoint.Fixed) (principal, interest *big.Int) {
	one := fixedpoint.One
	if debtCoeff.Cmp(one) <= 0 {
		return new(big.Int).Set(paid), big.NewInt(0)
	}
	principalAmt, ok := debtCoeff.RecipMulInt(paid)
	if !ok || principalAmt.Cmp(paid) > 0 {
		return new(big.Int).Set(paid), big.NewInt(0)
	}
	return principalAmt, new(big.Int).Sub(paid, principalAmt)
}
