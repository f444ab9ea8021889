package lending

import "math/big"

// MaxReserves bounds the reserve id space (spec.md §3: "id (0..255,
// stable)"), matching the bitmap width needed for UserConfiguration.
const MaxReserves = 256

// UserConfiguration is the compact per-user bitmap of collateral/borrow
// flags across reserve slots (spec.md §3, §4.5). Both bitmaps are backed
// by big.Int so the width scales to MaxReserves without a fixed uint128
// pair, matching the "two-integers-or-sorted-small-vector" alternative
// design note in spec.md §9 while keeping index-based access simple.
type UserConfiguration struct {
	collateralBits big.Int
	borrowBits     big.Int
	totalAssets    uint32
}

// NewUserConfiguration returns an empty configuration.
func NewUserConfiguration() *UserConfiguration {
	return &UserConfiguration{}
}

// Clone returns a deep copy.
func (c *UserConfiguration) Clone() *UserConfiguration {
	if c == nil {
		return NewUserConfiguration()
	}
	clone := &UserConfiguration{totalAssets: c.totalAssets}
	clone.collateralBits.Set(&c.collateralBits)
	clone.borrowBits.Set(&c.borrowBits)
	return clone
}

func checkReserveID(i uint8) error {
	if int(i) >= MaxReserves {
		return ErrNoReserveExistForAsset
	}
	return nil
}

// IsCollateral reports whether reserve i is currently supplied as
// collateral by the user.
func (c *UserConfiguration) IsCollateral(i uint8) bool {
	return c.collateralBits.Bit(int(i)) == 1
}

// IsBorrowing reports whether the user currently borrows reserve i.
func (c *UserConfiguration) IsBorrowing(i uint8) bool {
	return c.borrowBits.Bit(int(i)) == 1
}

// IsAny reports whether the user has any position (collateral or debt)
// in reserve i.
func (c *UserConfiguration) IsAny(i uint8) bool {
	return c.IsCollateral(i) || c.IsBorrowing(i)
}

// TotalAssets returns the number of distinct reserves the user
// participates in.
func (c *UserConfiguration) TotalAssets() uint32 {
	return c.totalAssets
}

// IsEmpty reports whether the user has no active reserves at all.
func (c *UserConfiguration) IsEmpty() bool {
	return c.totalAssets == 0
}

// SetCollateral flips the collateral bit for reserve i. Setting it true
// while the user already borrows the same reserve fails with
// ErrMustNotHaveDebt, matching spec.md §4.5's "BorrowingAsCollateral"
// case. assetLimit bounds TotalAssets() after the transition.
func (c *UserConfiguration) SetCollateral(i uint8, value bool, assetLimit uint32) error {
	if err := checkReserveID(i); err != nil {
		return err
	}
	if value && c.IsBorrowing(i) {
		return ErrMustNotHaveDebt
	}
	wasAny := c.IsAny(i)
	if value {
		c.collateralBits.SetBit(&c.collateralBits, int(i), 1)
	} else {
		c.collateralBits.SetBit(&c.collateralBits, int(i), 0)
	}
	return c.adjustTotalAssets(i, wasAny, assetLimit)
}

// SetBorrowing flips the borrow bit for reserve i, subject to the same
// mutual-exclusion and asset-limit rules as SetCollateral.
func (c *UserConfiguration) SetBorrowing(i uint8, value bool, assetLimit uint32) error {
	if err := checkReserveID(i); err != nil {
		return err
	}
	if value && c.IsCollateral(i) {
		return ErrBorrowCollateralSameAsset
	}
	wasAny := c.IsAny(i)
	if value {
		c.borrowBits.SetBit(&c.borrowBits, int(i), 1)
	} else {
		c.borrowBits.SetBit(&c.borrowBits, int(i), 0)
	}
	return c.adjustTotalAssets(i, wasAny, assetLimit)
}

func (c *UserConfiguration) adjustTotalAssets(i uint8, wasAny bool, assetLimit uint32) error {
	isAny := c.IsAny(i)
	switch {
	case !wasAny && isAny:
		if assetLimit > 0 && c.totalAssets+1 > assetLimit {
			return ErrUserAssetsLimitExceeded
		}
		c.totalAssets++
	case wasAny && !isAny:
		if c.totalAssets > 0 {
			c.totalAssets--
		}
	}
	return nil
}
