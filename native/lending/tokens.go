package lending

import (
	"context"
	"math/big"

	"riskpool/crypto"
)

// UnderlyingAsset is the external asset-transfer collaborator (spec.md
// §6): custody, balances, and decimals live outside the accounting
// engine.
type UnderlyingAsset interface {
	Transfer(ctx context.Context, from, to crypto.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *big.Int) error
	Balance(ctx context.Context, addr crypto.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint32, error)
}

// SToken is the external collateral-receipt token collaborator (spec.md
// §6).
type SToken interface {
	Mint(ctx context.Context, to crypto.Address, scaledAmount *big.Int) error
	Burn(ctx context.Context, from crypto.Address, scaledAmount, underlyingAmount *big.Int, to crypto.Address) error
	TransferOnLiquidation(ctx context.Context, from, to crypto.Address, scaledAmount *big.Int) error
	TransferUnderlyingTo(ctx context.Context, to crypto.Address, amount *big.Int) error
	Balance(ctx context.Context, addr crypto.Address) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

// DebtToken is the external debt-receipt token collaborator (spec.md
// §6).
type DebtToken interface {
	Mint(ctx context.Context, to crypto.Address, scaledAmount *big.Int) error
	Burn(ctx context.Context, from crypto.Address, scaledAmount *big.Int) error
	Balance(ctx context.Context, addr crypto.Address) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

// FlashLoanAsset is a single leg of a flash-loan callback payload (spec.md
// §6, §4.8).
type FlashLoanAsset struct {
	Asset   crypto.Address
	Amount  *big.Int
	Premium *big.Int
}

// FlashLoanReceiver is the external callback collaborator invoked once,
// mid-transaction, with every borrowed leg (spec.md §6). A false return
// (or error) aborts the entire flash loan.
type FlashLoanReceiver interface {
	Receive(ctx context.Context, assets []FlashLoanAsset, params []byte) (bool, error)
}

// TokenResolver resolves a reserve's s-token and debt-token collaborators by
// address; the engine's storage layer is expected to provide this
// lookup (spec.md §6 persisted-state key "Reserves(asset) -> Reserve").
type TokenResolver interface {
	UnderlyingAsset(ctx context.Context, asset crypto.Address) (UnderlyingAsset, error)
	SToken(ctx context.Context, id crypto.Address) (SToken, error)
	DebtToken(ctx context.Context, id crypto.Address) (DebtToken, error)
}
