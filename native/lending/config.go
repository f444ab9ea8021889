package lending

import (
	"context"
	"math/big"

	riskconfig "riskpool/config"
	"riskpool/crypto"
)

// PoolConfigFromFile translates the on-disk bootstrap config into the
// engine's PoolConfig/IRParams, following the teacher's config.Load
// pattern (spec.md §6 CLI/admin surface "initialize").
func PoolConfigFromFile(cfg *riskconfig.Config, baseAsset crypto.Address) (PoolConfig, IRParams) {
	poolCfg := PoolConfig{
		BaseAsset:                 baseAsset,
		BaseAssetDecimals:         cfg.BaseAssetDecimals,
		FlashLoanFeeBps:           cfg.FlashLoanFeeBps,
		InitialHealthBps:          cfg.InitialHealthBps,
		TimestampWindowSeconds:    cfg.TimestampWindowSeconds,
		GracePeriodSeconds:        cfg.GracePeriodSeconds,
		UserAssetsLimit:           cfg.UserAssetsLimit,
		MinCollatAmount:           big.NewInt(0),
		MinDebtAmount:             big.NewInt(0),
		LiquidationProtocolFeeBps: cfg.LiquidationProtocolFee,
	}
	irParams := IRParams{
		AlphaBps:        cfg.IRAlphaBps,
		InitialRateBps:  cfg.IRInitialRateBps,
		MaxRateBps:      cfg.IRMaxRateBps,
		ScalingCoeffBps: cfg.IRScalingCoeffBps,
	}
	return poolCfg, irParams
}

// Admin is the permission-gated control surface over pool-wide and
// per-reserve configuration (spec.md §6 CLI/admin surface). Permission
// checking is reduced to a single admin address here; a full
// permission-table implementation is out of scope (spec.md §1 "admin/
// permission role management" is an external collaborator).
type Admin struct {
	store     Store
	adminAddr crypto.Address
	events    EventPublisher
}

// NewAdmin binds an Admin to its storage collaborator and the single
// address authorized to call its methods.
func NewAdmin(store Store, adminAddr crypto.Address) *Admin {
	return &Admin{store: store, adminAddr: adminAddr}
}

// SetEvents wires the event-sink collaborator used for config-change
// notifications; mirrors Engine.SetEvents.
func (a *Admin) SetEvents(p EventPublisher) { a.events = p }

func (a *Admin) publish(event any) {
	if a.events == nil {
		return
	}
	a.events.Publish(event)
}

func (a *Admin) requireAdmin(caller crypto.Address) error {
	if !caller.Equal(a.adminAddr) {
		return ErrUnauthorized
	}
	return nil
}

// InitReserve registers a new reserve (spec.md §6 "init_reserve").
func (a *Admin) InitReserve(ctx context.Context, caller crypto.Address, id uint8, asset crypto.Address, variant ReserveVariant, cfg ReserveConfiguration) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	existing, err := a.store.Reserve(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrReserveAlreadyInitialized
	}
	reserve := NewReserve(id, asset, variant, cfg)
	return a.store.SaveReserve(ctx, reserve)
}

// SetIRParams updates the global interest-rate model coefficients
// (spec.md §6 "set_ir_params").
func (a *Admin) SetIRParams(ctx context.Context, caller crypto.Address, params IRParams) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	return a.store.SaveIRParams(params)
}

// SetPoolConfiguration updates pool-wide operational parameters
// (spec.md §6 "set_pool_configuration").
func (a *Admin) SetPoolConfiguration(ctx context.Context, caller crypto.Address, cfg PoolConfig) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	return a.store.SavePoolConfig(cfg)
}

// SetFlashLoanFee updates the flash-loan fee in isolation (spec.md §6
// "set_flash_loan_fee").
func (a *Admin) SetFlashLoanFee(ctx context.Context, caller crypto.Address, bps uint32) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	if bps > PercentageFactor {
		return ErrMustBeLtePercentageFactor
	}
	cfg := a.store.PoolConfig()
	cfg.FlashLoanFeeBps = bps
	return a.store.SavePoolConfig(cfg)
}

// SetInitialHealth updates the borrow-admission health threshold
// (spec.md §6 "set_initial_health").
func (a *Admin) SetInitialHealth(ctx context.Context, caller crypto.Address, bps uint32) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	if bps > PercentageFactor {
		return ErrMustBeLtePercentageFactor
	}
	cfg := a.store.PoolConfig()
	cfg.InitialHealthBps = bps
	return a.store.SavePoolConfig(cfg)
}

// SetReserveStatus toggles a reserve's active flag (spec.md §6
// "set_reserve_status").
func (a *Admin) SetReserveStatus(ctx context.Context, caller crypto.Address, asset crypto.Address, active bool) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	reserve, err := a.store.ReserveByAsset(ctx, asset)
	if err != nil {
		return err
	}
	if reserve == nil {
		return ErrNoReserveExistForAsset
	}
	reserve.Configuration.Active = active
	return a.store.SaveReserve(ctx, reserve)
}

// EnableBorrowing toggles a reserve's borrowing_enabled flag (spec.md §6
// "enable_borrowing_on_reserve").
func (a *Admin) EnableBorrowing(ctx context.Context, caller crypto.Address, asset crypto.Address, enabled bool) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	reserve, err := a.store.ReserveByAsset(ctx, asset)
	if err != nil {
		return err
	}
	if reserve == nil {
		return ErrNoReserveExistForAsset
	}
	reserve.Configuration.BorrowingEnabled = enabled
	if err := a.store.SaveReserve(ctx, reserve); err != nil {
		return err
	}
	a.publish(BorrowingEnabledChangedEvent{Asset: asset, Enabled: enabled})
	return nil
}

// ConfigureAsCollateral updates a reserve's collateral parameters
// (spec.md §6 "configure_as_collateral").
func (a *Admin) ConfigureAsCollateral(ctx context.Context, caller crypto.Address, asset crypto.Address, liqBonusBps, utilCapBps, discountBps, liquidationOrder uint32, liqCap *big.Int) error {
	if err := a.requireAdmin(caller); err != nil {
		return err
	}
	reserve, err := a.store.ReserveByAsset(ctx, asset)
	if err != nil {
		return err
	}
	if reserve == nil {
		return ErrNoReserveExistForAsset
	}
	if liqBonusBps <= PercentageFactor {
		return ErrMustBeGtPercentageFactor
	}
	if utilCapBps >= PercentageFactor {
		return ErrMustBeLtPercentageFactor
	}
	if discountBps > PercentageFactor {
		return ErrMustBeLtePercentageFactor
	}
	reserve.Configuration.LiqBonusBps = liqBonusBps
	reserve.Configuration.UtilCapBps = utilCapBps
	reserve.Configuration.DiscountBps = discountBps
	reserve.Configuration.LiquidationOrder = liquidationOrder
	reserve.Configuration.LiqCap = liqCap
	if err := a.store.SaveReserve(ctx, reserve); err != nil {
		return err
	}
	a.publish(CollateralConfigChangeEvent{
		Asset:            asset,
		LiqBonusBps:      liqBonusBps,
		UtilCapBps:       utilCapBps,
		DiscountBps:      discountBps,
		LiquidationOrder: liquidationOrder,
	})
	return nil
}
