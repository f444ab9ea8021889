package lending

import (
	"context"
	"math/big"
	"sort"

	"riskpool/crypto"
	"riskpool/fixedpoint"
	"riskpool/oracle"
)

// BalanceOverride lets CalcAccountData price a hypothetical s-token
// balance instead of the stored one (spec.md §4.6). The engine's own
// entry points pass nil: Withdraw checks the position after its burn
// has been applied.
type BalanceOverride struct {
	STokenID crypto.Address
	Balance  *big.Int
}

// CalcAccountData walks every reserve the user participates in and
// produces the aggregate valuation described in spec.md §4.6. When
// forLiquidation is true it also returns ordered collateral/debt legs
// for the liquidation algorithm.
func CalcAccountData(
	ctx context.Context,
	store Store,
	prices *oracle.Provider,
	user crypto.Address,
	override *BalanceOverride,
	forLiquidation bool,
) (AccountData, error) {
	cfg, err := store.UserConfig(ctx, user)
	if err != nil {
		return AccountData{}, err
	}
	if cfg == nil || cfg.IsEmpty() {
		return zeroAccountData(), nil
	}

	result := zeroAccountData()
	poolCfg := store.PoolConfig()
	irParams := store.IRParams()
	now := store.Now()

	for id := 0; id < MaxReserves; id++ {
		reserveID := uint8(id)
		if !cfg.IsAny(reserveID) {
			continue
		}
		reserve, err := store.Reserve(ctx, reserveID)
		if err != nil {
			return AccountData{}, err
		}
		if reserve == nil {
			continue
		}

		if err := refreshReserveForAccount(ctx, store, reserve, irParams, poolCfg, now); err != nil {
			return AccountData{}, err
		}
		if !reserve.Configuration.Active {
			if forLiquidation {
				return AccountData{}, ErrNoActiveReserve
			}
			continue
		}

		if cfg.IsCollateral(reserveID) {
			if err := accumulateCollateral(ctx, store, prices, user, reserve, override, forLiquidation, &result); err != nil {
				return AccountData{}, err
			}
		}
		if cfg.IsBorrowing(reserveID) {
			if err := accumulateDebt(ctx, store, prices, user, reserve, forLiquidation, &result); err != nil {
				return AccountData{}, err
			}
		}
	}

	result.NPV = new(big.Int).Sub(result.DiscountedCollateral, result.Debt)

	if forLiquidation {
		sortLiquidationLegs(&result)
	}
	return result, nil
}

func refreshReserveForAccount(ctx context.Context, store Store, reserve *Reserve, irParams IRParams, poolCfg PoolConfig, now uint64) error {
	debtToken, err := store.DebtToken(ctx, reserve.Variant.DebtTokenID)
	if err != nil {
		return err
	}
	var totalDebt *big.Int
	if debtToken == nil {
		totalDebt = big.NewInt(0)
	} else {
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
	if err := RefreshReserve(reserve, irParams, reserve.Configuration.UtilCapBps, poolCfg.TimestampWindowSeconds, now, totalDebt); err != nil {
		return err
	}
	return store.SaveReserve(ctx, reserve)
}

func accumulateCollateral(
	ctx context.Context,
	store Store,
	prices *oracle.Provider,
	user crypto.Address,
	reserve *Reserve,
	override *BalanceOverride,
	forLiquidation bool,
	result *AccountData,
) error {
	sToken, err := store.SToken(ctx, reserve.Variant.STokenID)
	if err != nil {
		return err
	}
	var whoBalance *big.Int
	if override != nil && override.STokenID.Equal(reserve.Variant.STokenID) {
		whoBalance = override.Balance
	} else {
		whoBalance, err = sToken.Balance(ctx, user)
		if err != nil {
			return err
		}
	}

	sSupply, err := sToken.TotalSupply(ctx)
	if err != nil {
		return err
	}
	debtToken, err := store.DebtToken(ctx, reserve.Variant.DebtTokenID)
	if err != nil {
		return err
	}
	var debtSupply *big.Int
	if debtToken == nil {
		debtSupply = big.NewInt(0)
	} else {
		debtSupply, err = debtToken.TotalSupply(ctx)
		if err != nil {
			return err
		}
	}

	coeff, err := CollatCoeff(reserve, sSupply, debtSupply)
	if err != nil {
		return err
	}
	compounded, ok := coeff.MulInt(whoBalance)
	if !ok {
		return ErrCalcAccountDataMath
	}
	compoundedBase, err := prices.ConvertToBase(ctx, reserve.Asset, compounded)
	if err != nil {
		return err
	}
	discount, ok := fixedpoint.FromPercentage(int64(reserve.Configuration.DiscountBps))
	if !ok {
		return ErrCalcAccountDataMath
	}
	discountedBase, ok := discount.MulInt(compoundedBase)
	if !ok {
		return ErrCalcAccountDataMath
	}
	result.DiscountedCollateral.Add(result.DiscountedCollateral, discountedBase)

	if forLiquidation {
		result.LiqCollat = append(result.LiqCollat, CollateralLeg{
			Asset:            reserve.Asset,
			Reserve:          reserve,
			STokenBalance:    whoBalance,
			Compounded:       compounded,
			Coeff:            coeff,
			Discount:         discount,
			LiquidationOrder: reserve.Configuration.LiquidationOrder,
		})
	}
	return nil
}

func accumulateDebt(
	ctx context.Context,
	store Store,
	prices *oracle.Provider,
	user crypto.Address,
	reserve *Reserve,
	forLiquidation bool,
	result *AccountData,
) error {
	debtToken, err := store.DebtToken(ctx, reserve.Variant.DebtTokenID)
	if err != nil {
		return err
	}
	debtBalance, err := debtToken.Balance(ctx, user)
	if err != nil {
		return err
	}
	debtCoeff := DebtCoeff(reserve)
	compoundedDebt, ok := debtCoeff.MulInt(debtBalance)
	if !ok {
		return ErrCalcAccountDataMath
	}
	debtBase, err := prices.ConvertToBase(ctx, reserve.Asset, compoundedDebt)
	if err != nil {
		return err
	}
	result.Debt.Add(result.Debt, debtBase)

	if forLiquidation {
		result.LiqDebt = append(result.LiqDebt, DebtLeg{
			Asset:            reserve.Asset,
			Reserve:          reserve,
			DebtTokenBalance: debtBalance,
			CompoundedDebt:   compoundedDebt,
			DebtCoeff:        debtCoeff,
		})
	}
	return nil
}

func sortLiquidationLegs(result *AccountData) {
	sort.Slice(result.LiqCollat, func(i, j int) bool {
		a, b := result.LiqCollat[i], result.LiqCollat[j]
		if a.LiquidationOrder != b.LiquidationOrder {
			return a.LiquidationOrder < b.LiquidationOrder
		}
		return string(a.Asset.Bytes()) < string(b.Asset.Bytes())
	})
	sort.Slice(result.LiqDebt, func(i, j int) bool {
		return result.LiqDebt[i].CompoundedDebt.Cmp(result.LiqDebt[j].CompoundedDebt) > 0
	})
}
