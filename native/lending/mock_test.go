package lending

import (
	"context"
	"math/big"
	"time"

	"riskpool/crypto"
	"riskpool/oracle"
)

// makeAddress builds a deterministic test address the way the teacher's own
// lending tests do (native/lending/engine_guard_test.go's makeAddress
// helper), scoped to this engine's own prefix/byte-width.
func makeAddress(prefix crypto.AddressPrefix, b byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = b
	return crypto.MustNewAddress(prefix, buf)
}

// mockUnderlying is a bare in-memory ledger standing in for an external
// asset-transfer collaborator (spec.md §6).
type mockUnderlying struct {
	balances map[string]*big.Int
}

func newMockUnderlying() *mockUnderlying {
	return &mockUnderlying{balances: make(map[string]*big.Int)}
}

func (m *mockUnderlying) fund(addr crypto.Address, amount *big.Int) {
	m.balances[addr.String()] = new(big.Int).Set(amount)
}

func (m *mockUnderlying) balanceOf(addr crypto.Address) *big.Int {
	if b, ok := m.balances[addr.String()]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *mockUnderlying) Transfer(ctx context.Context, from, to crypto.Address, amount *big.Int) error {
	fromBal := m.balanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return ErrNotEnoughAvailableUserBalance
	}
	m.balances[from.String()] = new(big.Int).Sub(fromBal, amount)
	m.balances[to.String()] = new(big.Int).Add(m.balanceOf(to), amount)
	return nil
}

func (m *mockUnderlying) TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *big.Int) error {
	return m.Transfer(ctx, from, to, amount)
}

func (m *mockUnderlying) Balance(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	return m.balanceOf(addr), nil
}

func (m *mockUnderlying) Decimals(ctx context.Context) (uint32, error) { return 9, nil }

// mockSToken is an in-memory collateral receipt token.
type mockSToken struct {
	balances map[string]*big.Int
	supply   *big.Int
}

func newMockSToken() *mockSToken {
	return &mockSToken{balances: make(map[string]*big.Int), supply: big.NewInt(0)}
}

func (m *mockSToken) balanceOf(addr crypto.Address) *big.Int {
	if b, ok := m.balances[addr.String()]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *mockSToken) Mint(ctx context.Context, to crypto.Address, amount *big.Int) error {
	m.balances[to.String()] = new(big.Int).Add(m.balanceOf(to), amount)
	m.supply.Add(m.supply, amount)
	return nil
}

func (m *mockSToken) Burn(ctx context.Context, from crypto.Address, scaledAmount, underlyingAmount *big.Int, to crypto.Address) error {
	bal := m.balanceOf(from)
	if bal.Cmp(scaledAmount) < 0 {
		return ErrNotEnoughAvailableUserBalance
	}
	m.balances[from.String()] = new(big.Int).Sub(bal, scaledAmount)
	m.supply.Sub(m.supply, scaledAmount)
	return nil
}

func (m *mockSToken) TransferOnLiquidation(ctx context.Context, from, to crypto.Address, scaledAmount *big.Int) error {
	bal := m.balanceOf(from)
	if bal.Cmp(scaledAmount) < 0 {
		return ErrNotEnoughAvailableUserBalance
	}
	m.balances[from.String()] = new(big.Int).Sub(bal, scaledAmount)
	m.balances[to.String()] = new(big.Int).Add(m.balanceOf(to), scaledAmount)
	return nil
}

func (m *mockSToken) TransferUnderlyingTo(ctx context.Context, to crypto.Address, amount *big.Int) error {
	return nil
}

func (m *mockSToken) Balance(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	return m.balanceOf(addr), nil
}

func (m *mockSToken) TotalSupply(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(m.supply), nil
}

// mockDebtToken is an in-memory debt receipt token.
type mockDebtToken struct {
	balances map[string]*big.Int
	supply   *big.Int
}

func newMockDebtToken() *mockDebtToken {
	return &mockDebtToken{balances: make(map[string]*big.Int), supply: big.NewInt(0)}
}

func (m *mockDebtToken) balanceOf(addr crypto.Address) *big.Int {
	if b, ok := m.balances[addr.String()]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *mockDebtToken) Mint(ctx context.Context, to crypto.Address, amount *big.Int) error {
	m.balances[to.String()] = new(big.Int).Add(m.balanceOf(to), amount)
	m.supply.Add(m.supply, amount)
	return nil
}

func (m *mockDebtToken) Burn(ctx context.Context, from crypto.Address, amount *big.Int) error {
	bal := m.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return ErrNotEnoughAvailableUserBalance
	}
	m.balances[from.String()] = new(big.Int).Sub(bal, amount)
	m.supply.Sub(m.supply, amount)
	return nil
}

func (m *mockDebtToken) Balance(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	return m.balanceOf(addr), nil
}

func (m *mockDebtToken) TotalSupply(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(m.supply), nil
}

// mockReserveHandle bundles a reserve with its bound token fakes so the
// mock store can resolve SToken/DebtToken/UnderlyingAsset lookups.
type mockReserveHandle struct {
	reserve    *Reserve
	sToken     *mockSToken
	debtToken  *mockDebtToken
	underlying *mockUnderlying
}

// mockStore is the hand-rolled in-memory Store fake used across this
// package's engine/liquidation/flash-loan tests, in the same spirit as the
// teacher's own newMockEngineState() helper.
type mockStore struct {
	reserves    map[uint8]*mockReserveHandle
	byAsset     map[string]uint8
	userConfigs map[string]*UserConfiguration
	poolCfg     PoolConfig
	irParams    IRParams
	treasury    crypto.Address
	poolAddr    crypto.Address
	feeds       map[string]oracle.AssetConfig
	now         uint64
}

func newMockStore() *mockStore {
	return &mockStore{
		reserves:    make(map[uint8]*mockReserveHandle),
		byAsset:     make(map[string]uint8),
		userConfigs: make(map[string]*UserConfiguration),
		feeds:       make(map[string]oracle.AssetConfig),
		treasury:    makeAddress(crypto.AccountPrefix, 0xF0),
		poolAddr:    makeAddress(crypto.AccountPrefix, 0xF1),
	}
}

func (s *mockStore) addReserve(r *Reserve) *mockReserveHandle {
	handle := &mockReserveHandle{
		reserve:    r,
		sToken:     newMockSToken(),
		debtToken:  newMockDebtToken(),
		underlying: newMockUnderlying(),
	}
	s.reserves[r.ID] = handle
	s.byAsset[r.Asset.String()] = r.ID
	return handle
}

func (s *mockStore) UserConfig(ctx context.Context, user crypto.Address) (*UserConfiguration, error) {
	return s.userConfigs[user.String()], nil
}

func (s *mockStore) SaveUserConfig(ctx context.Context, user crypto.Address, cfg *UserConfiguration) error {
	s.userConfigs[user.String()] = cfg
	return nil
}

func (s *mockStore) Reserve(ctx context.Context, id uint8) (*Reserve, error) {
	handle, ok := s.reserves[id]
	if !ok {
		return nil, nil
	}
	return handle.reserve, nil
}

func (s *mockStore) ReserveByAsset(ctx context.Context, asset crypto.Address) (*Reserve, error) {
	id, ok := s.byAsset[asset.String()]
	if !ok {
		return nil, nil
	}
	return s.reserves[id].reserve, nil
}

func (s *mockStore) SaveReserve(ctx context.Context, reserve *Reserve) error {
	s.reserves[reserve.ID].reserve = reserve
	return nil
}

func (s *mockStore) SToken(ctx context.Context, id crypto.Address) (SToken, error) {
	for _, handle := range s.reserves {
		if handle.reserve.Variant.STokenID.Equal(id) {
			return handle.sToken, nil
		}
	}
	return nil, nil
}

func (s *mockStore) DebtToken(ctx context.Context, id crypto.Address) (DebtToken, error) {
	if id.IsZero() {
		return nil, nil
	}
	for _, handle := range s.reserves {
		if handle.reserve.Variant.DebtTokenID.Equal(id) {
			return handle.debtToken, nil
		}
	}
	return nil, nil
}

func (s *mockStore) UnderlyingAsset(ctx context.Context, asset crypto.Address) (UnderlyingAsset, error) {
	id, ok := s.byAsset[asset.String()]
	if !ok {
		return nil, ErrNoReserveExistForAsset
	}
	return s.reserves[id].underlying, nil
}

func (s *mockStore) PoolConfig() PoolConfig         { return s.poolCfg }
func (s *mockStore) SavePoolConfig(c PoolConfig) error { s.poolCfg = c; return nil }
func (s *mockStore) IRParams() IRParams             { return s.irParams }
func (s *mockStore) SaveIRParams(p IRParams) error  { s.irParams = p; return nil }
func (s *mockStore) Treasury() crypto.Address       { return s.treasury }
func (s *mockStore) PriceFeeds() map[string]oracle.AssetConfig { return s.feeds }
func (s *mockStore) PoolAddress() crypto.Address    { return s.poolAddr }
func (s *mockStore) Now() uint64                    { return s.now }

// stubPauseView and stubGraceView let guard/grace tests flip the gate
// without a real params module backing them, mirroring the teacher's
// engine_guard_test.go stubPauseView.
type stubPauseView struct{ paused bool }

func (s stubPauseView) IsPaused(module string) bool { return s.paused }

type stubGraceView struct {
	unpauseAt time.Time
	seconds   uint64
}

func (s stubGraceView) UnpauseTime() time.Time { return s.unpauseAt }
func (s stubGraceView) GraceSeconds() uint64   { return s.seconds }
