package lending

import (
	"context"
	"math/big"

	"github.com/google/uuid"

	"riskpool/crypto"
	"riskpool/fixedpoint"
	"riskpool/observability/metrics"
	"riskpool/oracle"
)

// Liquidate seizes collateral from a user whose position has gone
// underwater (npv <= 0) and applies it against their debt, paying the
// liquidator a bonus funded by the borrower's remaining collateral
// (spec.md §4.8). receiveSToken selects whether the liquidator takes
// seized collateral as s-tokens (receiveSToken=true) or as underlying
// asset transferred out immediately.
func (e *Engine) Liquidate(ctx context.Context, liquidator, borrower crypto.Address, receiveSToken bool) error {
	if err := e.prologue(); err != nil {
		return err
	}

	prices := e.priceProvider(ctx)
	account, err := CalcAccountData(ctx, e.store, prices, borrower, nil, true)
	if err != nil {
		return err
	}
	if account.IsGood() {
		return ErrGoodPosition
	}
	if account.DiscountedCollateral.Sign() <= 0 {
		return ErrNotEnoughCollateral
	}

	liqBonus, err := liquidationBonus(account.NPV, account.DiscountedCollateral)
	if err != nil {
		return err
	}
	totalDebtLiqBonus, ok := fixedpoint.One.Sub(liqBonus)
	if !ok {
		return ErrLiquidateMath
	}
	poolCfg := e.store.PoolConfig()
	initialHealth, ok := fixedpoint.FromPercentage(int64(poolCfg.InitialHealthBps))
	if !ok {
		return ErrLiquidateMath
	}
	liquidationProtocolFee, ok := fixedpoint.FromPercentage(int64(poolCfg.LiquidationProtocolFeeBps))
	if !ok {
		return ErrLiquidateMath
	}

	runningCollateral := new(big.Int).Set(account.DiscountedCollateral)
	runningDebt := new(big.Int).Set(account.Debt)
	totalDebtToCover := big.NewInt(0)

	for i := range account.LiqCollat {
		if new(big.Int).Sub(runningCollateral, runningDebt).Sign() >= 0 {
			break
		}
		leg := &account.LiqCollat[i]
		seizedBase, debtCoveredBase, err := e.liquidateCollateralLeg(
			ctx, prices, liquidator, borrower, leg,
			runningCollateral, runningDebt,
			liqBonus, totalDebtLiqBonus, initialHealth, liquidationProtocolFee, receiveSToken,
		)
		if err != nil {
			return err
		}
		runningCollateral.Sub(runningCollateral, seizedBase)
		runningDebt.Sub(runningDebt, debtCoveredBase)
		totalDebtToCover.Add(totalDebtToCover, debtCoveredBase)
	}

	outcome := "collateral_only"
	if totalDebtToCover.Sign() > 0 {
		outcome = "debt_legs"
		if err := e.liquidateDebtLegs(ctx, liquidator, borrower, account.LiqDebt, totalDebtToCover); err != nil {
			return err
		}
	}
	collatSeized := new(big.Int).Sub(account.DiscountedCollateral, runningCollateral)
	seizedValue, _ := new(big.Float).SetInt(collatSeized).Float64()
	metrics.Lending().ObserveLiquidation(outcome, borrower.String(), seizedValue)
	logOperation(e.logger, "liquidate", borrower.String(), liquidator.String(), collatSeized.String(), nil)
	e.publish(LiquidationEvent{
		RequestID:     uuid.NewString(),
		Liquidator:    liquidator,
		Borrower:      borrower,
		ReceiveSToken: receiveSToken,
		DebtCovered:   totalDebtToCover,
		CollatSeized:  collatSeized,
	})
	return nil
}

// liquidationBonus implements "liq_bonus = min(|min(0, npv/discounted_collateral)|, 100%)"
// (spec.md §4.8).
func liquidationBonus(npv, discountedCollateral *big.Int) (fixedpoint.Fixed, error) {
	ratio, ok := fixedpoint.FromRational(npv, discountedCollateral)
	if !ok {
		return fixedpoint.Fixed{}, ErrLiquidateMath
	}
	if ratio.IsPositive() {
		ratio = fixedpoint.Zero
	}
	bonus := ratio.Abs()
	return bonus.Min(fixedpoint.One), nil
}

// liquidateCollateralLeg processes a single CollateralLeg per the
// numbered steps in spec.md §4.8, mutating borrower/liquidator token
// balances and reserve bookkeeping. Returns the discounted collateral
// seized and the debt covered, both in base-asset units.
func (e *Engine) liquidateCollateralLeg(
	ctx context.Context,
	prices *oracle.Provider,
	liquidator, borrower crypto.Address,
	leg *CollateralLeg,
	runningCollateral, runningDebt *big.Int,
	liqBonus, totalDebtLiqBonus, initialHealth, liquidationProtocolFee fixedpoint.Fixed,
	receiveSToken bool,
) (seizedBase, debtCoveredBase *big.Int, err error) {
	reserve := leg.Reserve

	// Step 1: safe_collat_base = (100% - initial_health) * discounted_collateral_running - debt_running
	oneMinusHealth, ok := fixedpoint.One.Sub(initialHealth)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}
	safeCollatBase, ok := oneMinusHealth.MulInt(runningCollateral)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}
	safeCollatBase = new(big.Int).Sub(safeCollatBase, runningDebt)

	// Step 2: safe_discount = discount + liq_bonus - 100% - discount*initial_health
	discountTimesHealth, ok := leg.Discount.CheckedMul(initialHealth)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}
	safeDiscount, ok := leg.Discount.Add(liqBonus)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}
	safeDiscount, ok = safeDiscount.Sub(fixedpoint.One)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}
	safeDiscount, ok = safeDiscount.Sub(discountTimesHealth)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}

	// Step 3: liq_amount_underlying = convert_from_base(asset, safe_collat_base) / safe_discount
	safeCollatUnderlying, err := prices.ConvertFromBase(ctx, leg.Asset, safeCollatBase)
	if err != nil {
		return nil, nil, err
	}
	var liqAmountUnderlying *big.Int
	if safeDiscount.Sign() == 0 {
		liqAmountUnderlying = big.NewInt(-1)
	} else {
		ratio, ok := fixedpoint.FromRational(safeCollatUnderlying, big.NewInt(1))
		if !ok {
			return nil, nil, ErrLiquidateMath
		}
		quotient, ok := ratio.Div(safeDiscount)
		if !ok {
			return nil, nil, ErrLiquidateMath
		}
		liqAmountUnderlying = quotient.Inner()
		liqAmountUnderlying.Quo(liqAmountUnderlying, big.NewInt(fixedpoint.Denominator))
	}

	// Step 4: seize min(comp_balance, liq_amount) unless the computation
	// implies taking everything.
	var seizedUnderlying *big.Int
	if liqAmountUnderlying.Sign() < 0 {
		seizedUnderlying = new(big.Int).Set(leg.Compounded)
	} else if liqAmountUnderlying.Cmp(leg.Compounded) < 0 {
		seizedUnderlying = liqAmountUnderlying
	} else {
		seizedUnderlying = new(big.Int).Set(leg.Compounded)
	}
	if seizedUnderlying.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}

	// Step 5: debt_covered_base = convert_to_base(total_debt_liq_bonus * seized_underlying)
	debtCoveredUnderlying, ok := totalDebtLiqBonus.MulInt(seizedUnderlying)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}
	debtCoveredBase, err = prices.ConvertToBase(ctx, leg.Asset, debtCoveredUnderlying)
	if err != nil {
		return nil, nil, err
	}

	seizedBaseValue, err := prices.ConvertToBase(ctx, leg.Asset, seizedUnderlying)
	if err != nil {
		return nil, nil, err
	}
	seizedDiscountedBase, ok := leg.Discount.MulInt(seizedBaseValue)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}

	// Step 7: s-token units corresponding to the seized underlying.
	lpUnits, ok := leg.Coeff.RecipMulInt(seizedUnderlying)
	if !ok {
		return nil, nil, ErrLiquidateMath
	}

	sToken, err := e.store.SToken(ctx, reserve.Variant.STokenID)
	if err != nil {
		return nil, nil, err
	}

	// Step 8: deliver seized collateral to the liquidator.
	if receiveSToken {
		liquidatorCfg, err := e.store.UserConfig(ctx, liquidator)
		if err != nil {
			return nil, nil, err
		}
		if liquidatorCfg == nil {
			liquidatorCfg = NewUserConfiguration()
		}
		if liquidatorCfg.IsBorrowing(reserve.ID) {
			return nil, nil, ErrMustNotHaveDebt
		}
		if err := sToken.TransferOnLiquidation(ctx, borrower, liquidator, lpUnits); err != nil {
			return nil, nil, err
		}
		if !liquidatorCfg.IsCollateral(reserve.ID) {
			poolCfg := e.store.PoolConfig()
			if err := liquidatorCfg.SetCollateral(reserve.ID, true, poolCfg.UserAssetsLimit); err != nil {
				return nil, nil, err
			}
			e.publish(newReserveUsedAsCollateralEvent(liquidator, reserve.Asset, true))
		}
		if err := e.store.SaveUserConfig(ctx, liquidator, liquidatorCfg); err != nil {
			return nil, nil, err
		}
	} else {
		protocolFeeUnderlying, ok := liquidationProtocolFee.MulInt(seizedUnderlying)
		if !ok {
			return nil, nil, ErrLiquidateMath
		}
		payout := new(big.Int).Sub(seizedUnderlying, protocolFeeUnderlying)
		if err := sToken.Burn(ctx, borrower, lpUnits, seizedUnderlying, liquidator); err != nil {
			return nil, nil, err
		}
		underlying, err := e.store.UnderlyingAsset(ctx, leg.Asset)
		if err != nil {
			return nil, nil, err
		}
		if err := underlying.Transfer(ctx, e.store.PoolAddress(), liquidator, payout); err != nil {
			return nil, nil, err
		}
		if protocolFeeUnderlying.Sign() > 0 {
			if err := underlying.Transfer(ctx, e.store.PoolAddress(), e.store.Treasury(), protocolFeeUnderlying); err != nil {
				return nil, nil, err
			}
		}
		reserve.STokenUnderlyingBalance.Sub(reserve.STokenUnderlyingBalance, seizedUnderlying)
	}

	// Step 9: refresh the reserve's bookkeeping state.
	if err := e.store.SaveReserve(ctx, reserve); err != nil {
		return nil, nil, err
	}

	return seizedDiscountedBase, debtCoveredBase, nil
}

// liquidateDebtLegs covers outstanding debt after collateral seizure,
// descending compounded-debt order, until remainingBase is exhausted
// (spec.md §4.8 "process debts in descending compounded-debt order").
func (e *Engine) liquidateDebtLegs(ctx context.Context, liquidator, borrower crypto.Address, legs []DebtLeg, remainingBase *big.Int) error {
	prices := e.priceProvider(ctx)
	remaining := new(big.Int).Set(remainingBase)

	cfg, err := e.store.UserConfig(ctx, borrower)
	if err != nil {
		return err
	}
	poolCfg := e.store.PoolConfig()

	for i := range legs {
		if remaining.Sign() <= 0 {
			break
		}
		leg := &legs[i]
		reserve := leg.Reserve

		debtToken, err := e.store.DebtToken(ctx, reserve.Variant.DebtTokenID)
		if err != nil {
			return err
		}
		underlying, err := e.store.UnderlyingAsset(ctx, leg.Asset)
		if err != nil {
			return err
		}

		legBase, err := prices.ConvertToBase(ctx, leg.Asset, leg.CompoundedDebt)
		if err != nil {
			return err
		}

		if legBase.Cmp(remaining) <= 0 {
			if err := underlying.TransferFrom(ctx, liquidator, liquidator, e.store.PoolAddress(), leg.CompoundedDebt); err != nil {
				return err
			}
			if err := debtToken.Burn(ctx, borrower, leg.DebtTokenBalance); err != nil {
				return err
			}
			remaining.Sub(remaining, legBase)
			if cfg != nil {
				if err := cfg.SetBorrowing(reserve.ID, false, poolCfg.UserAssetsLimit); err != nil {
					return err
				}
			}
		} else {
			partialUnderlying, err := prices.ConvertFromBase(ctx, leg.Asset, remaining)
			if err != nil {
				return err
			}
			burnUnits, ok := leg.DebtCoeff.RecipMulInt(partialUnderlying)
			if !ok {
				return ErrDebtCoeffMath
			}
			if err := underlying.TransferFrom(ctx, liquidator, liquidator, e.store.PoolAddress(), partialUnderlying); err != nil {
				return err
			}
			if err := debtToken.Burn(ctx, borrower, burnUnits); err != nil {
				return err
			}
			remaining.SetInt64(0)
		}
		if err := e.store.SaveReserve(ctx, reserve); err != nil {
			return err
		}
	}

	if cfg != nil {
		if err := e.store.SaveUserConfig(ctx, borrower, cfg); err != nil {
			return err
		}
	}

	if remaining.Sign() > 0 {
		return ErrNotEnoughCollateral
	}
	return nil
}
