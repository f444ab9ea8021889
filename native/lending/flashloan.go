package lending

import (
	"context"
	"math/big"

	"github.com/google/uuid"

	"riskpool/crypto"
	"riskpool/fixedpoint"
	"riskpool/observability/metrics"
)

// FlashLoanRequest is one leg of a flash loan: borrow `amount` of asset,
// optionally converting it into a standing debt position for `caller`
// instead of requiring immediate repayment (spec.md §4.9).
type FlashLoanRequest struct {
	Asset  crypto.Address
	Amount *big.Int
	Borrow bool
}

// FlashLoan transfers every requested asset to receiver, invokes its
// callback once, and settles each leg either by pulling back
// amount+premium or by converting the leg into a standing debt position
// (spec.md §4.9). Each step must succeed or the whole call fails —
// there is no partial settlement.
func (e *Engine) FlashLoan(ctx context.Context, caller crypto.Address, receiver FlashLoanReceiver, requests []FlashLoanRequest, params []byte) error {
	if err := e.prologue(); err != nil {
		return err
	}
	if len(requests) == 0 {
		return ErrInvalidAmount
	}
	requestID := uuid.NewString()

	poolCfg := e.store.PoolConfig()
	fee, ok := fixedpoint.FromPercentage(int64(poolCfg.FlashLoanFeeBps))
	if !ok {
		return ErrAccruedRateMath
	}

	reserves := make([]*Reserve, len(requests))
	premiums := make([]*big.Int, len(requests))
	callbackAssets := make([]FlashLoanAsset, len(requests))

	for i, req := range requests {
		if err := requirePositive(req.Amount); err != nil {
			return err
		}
		reserve, err := e.store.ReserveByAsset(ctx, req.Asset)
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
		if !reserve.Configuration.BorrowingEnabled {
			return ErrBorrowingNotEnabled
		}

		premium, ok := fee.MulInt(req.Amount)
		if !ok {
			return ErrAccruedRateMath
		}

		underlying, err := e.store.UnderlyingAsset(ctx, req.Asset)
		if err != nil {
			return err
		}
		receiverAddr := receiverAddress(receiver)
		if err := underlying.Transfer(ctx, e.store.PoolAddress(), receiverAddr, req.Amount); err != nil {
			return err
		}

		reserves[i] = reserve
		premiums[i] = premium
		callbackAssets[i] = FlashLoanAsset{Asset: req.Asset, Amount: req.Amount, Premium: premium}
	}

	ok2, err := receiver.Receive(ctx, callbackAssets, params)
	if err != nil {
		return err
	}
	if !ok2 {
		return ErrFlashLoanReceiver
	}

	receiverAddr := receiverAddress(receiver)
	for i, req := range requests {
		reserve := reserves[i]
		underlying, err := e.store.UnderlyingAsset(ctx, req.Asset)
		if err != nil {
			return err
		}

		mode := "repaid"
		if !req.Borrow {
			owed := new(big.Int).Add(req.Amount, premiums[i])
			if err := underlying.TransferFrom(ctx, receiverAddr, receiverAddr, e.store.PoolAddress(), owed); err != nil {
				return err
			}
			if err := underlying.Transfer(ctx, e.store.PoolAddress(), e.store.Treasury(), premiums[i]); err != nil {
				return err
			}
		} else {
			mode = "converted_to_debt"
			// Undo the transfer-out above before calling Borrow: Borrow
			// performs its own pool->caller transfer as part of opening the
			// debt position, and the funds are already sitting with the
			// receiver from the leg above, not the caller.
			if err := underlying.Transfer(ctx, receiverAddr, e.store.PoolAddress(), req.Amount); err != nil {
				return err
			}
			if err := e.Borrow(ctx, caller, req.Asset, req.Amount); err != nil {
				return err
			}
		}

		amountValue, _ := new(big.Float).SetInt(req.Amount).Float64()
		metrics.Lending().ObserveFlashLoan(mode, req.Asset.String(), amountValue)

		if err := e.refreshOne(ctx, reserve); err != nil {
			return err
		}
		logOperation(e.logger, "flash_loan:"+mode, caller.String(), req.Asset.String(), req.Amount.String(), nil)
	}
	e.publish(FlashLoanEvent{RequestID: requestID, Caller: caller, Receiver: receiverAddr, Assets: callbackAssets})
	return nil
}

// receiverAddress recovers the receiver's own address so settlement can
// pull funds back from it; concrete receivers are expected to also
// satisfy this narrow accessor.
func receiverAddress(receiver FlashLoanReceiver) crypto.Address {
	if addressable, ok := receiver.(interface{ Address() crypto.Address }); ok {
		return addressable.Address()
	}
	return crypto.Address{}
}
