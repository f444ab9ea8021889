package lending

import (
	"math/big"

	"riskpool/crypto"
)

// Event types published on successful mutating operations (spec.md §6
// "Events"). Field shapes mirror the teacher's per-module event struct
// convention (native/loyalty/events.go, native/escrow/events.go) rather
// than a single generic envelope, so each event's payload is
// self-describing at the call site.

type DepositEvent struct {
	User   crypto.Address
	Asset  crypto.Address
	Amount *big.Int
}

type WithdrawEvent struct {
	User   crypto.Address
	To     crypto.Address
	Asset  crypto.Address
	Amount *big.Int
}

type BorrowEvent struct {
	User   crypto.Address
	Asset  crypto.Address
	Amount *big.Int
}

type RepayEvent struct {
	Payer    crypto.Address
	Borrower crypto.Address
	Asset    crypto.Address
	Amount   *big.Int
}

type ReserveUsedAsCollateralEvent struct {
	User    crypto.Address
	Asset   crypto.Address
	Enabled bool
}

type BorrowingEnabledChangedEvent struct {
	Asset   crypto.Address
	Enabled bool
}

type CollateralConfigChangeEvent struct {
	Asset            crypto.Address
	LiqBonusBps      uint32
	UtilCapBps       uint32
	DiscountBps      uint32
	LiquidationOrder uint32
}

type FlashLoanEvent struct {
	// RequestID correlates the loan's transfer-out, callback, and
	// settlement legs in downstream event consumers — there is no other
	// natural key once multiple legs touch the same asset in one call.
	RequestID string
	Caller    crypto.Address
	Receiver  crypto.Address
	Assets    []FlashLoanAsset
}

type LiquidationEvent struct {
	RequestID     string
	Liquidator    crypto.Address
	Borrower      crypto.Address
	ReceiveSToken bool
	DebtCovered   *big.Int
	CollatSeized  *big.Int
}

func newDepositEvent(user, asset crypto.Address, amount *big.Int) DepositEvent {
	return DepositEvent{User: user, Asset: asset, Amount: amount}
}

func newWithdrawEvent(user, to, asset crypto.Address, amount *big.Int) WithdrawEvent {
	return WithdrawEvent{User: user, To: to, Asset: asset, Amount: amount}
}

func newBorrowEvent(user, asset crypto.Address, amount *big.Int) BorrowEvent {
	return BorrowEvent{User: user, Asset: asset, Amount: amount}
}

func newRepayEvent(payer, borrower, asset crypto.Address, amount *big.Int) RepayEvent {
	return RepayEvent{Payer: payer, Borrower: borrower, Asset: asset, Amount: amount}
}

func newReserveUsedAsCollateralEvent(user, asset crypto.Address, enabled bool) ReserveUsedAsCollateralEvent {
	return ReserveUsedAsCollateralEvent{User: user, Asset: asset, Enabled: enabled}
}

// EventPublisher is the external event-sink collaborator (spec.md §1 —
// "event emission details" are named as an external collaborator's
// concern; the engine only decides what gets published, not how).
type EventPublisher interface {
	Publish(event any)
}

func (e *Engine) publish(event any) {
	if e.events == nil {
		return
	}
	e.events.Publish(event)
}

// SetEvents wires the event-sink collaborator.
func (e *Engine) SetEvents(p EventPublisher) { e.events = p }
