// Package crypto adapts the network's bech32 address scheme for the
// lending engine: accounts, reserve asset handles, and s-token/debt-token
// handles are all 20-byte addresses distinguished by a human-readable
// prefix.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix distinguishes the different kinds of handles the engine
// deals with so a reserve asset address can never be mistaken for a user
// account or vice versa.
type AddressPrefix string

const (
	// AccountPrefix identifies supplier/borrower/liquidator accounts.
	AccountPrefix AddressPrefix = "rp"
	// AssetPrefix identifies the underlying asset of a reserve.
	AssetPrefix AddressPrefix = "rpa"
	// TokenPrefix identifies an s-token or debt-token handle.
	TokenPrefix AddressPrefix = "rpt"
)

// Address is a 20-byte identifier rendered as bech32 with a scoped prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress constructs an address from exactly 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("crypto: address must be 20 bytes, got %d", len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNewAddress constructs an address and panics on invalid input; used
// only for test fixtures and module-owned well-known addresses.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsZero reports whether the address carries no bytes or only zero
// bytes, the sentinel used
// throughout the engine for "no recipient configured".
func (a Address) IsZero() bool {
	if len(a.bytes) == 0 {
		return true
	}
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bytes returns a defensive copy of the underlying 20 bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the address's namespace prefix.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Equal reports whether two addresses share the same prefix and bytes.
func (a Address) Equal(other Address) bool {
	if a.prefix != other.prefix {
		return false
	}
	return string(a.bytes) == string(other.bytes)
}

// String renders the address as bech32.
func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses a bech32-encoded address string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// PrivateKey wraps an ECDSA private key used to authenticate callers in
// the host's require_auth step (spec.md §4.7 prologue).
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// GeneratePrivateKey creates a fresh secp256k1 key pair.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the DER-free raw private key bytes.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address derives the account address corresponding to the key.
func (k *PrivateKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(k.PrivateKey.PublicKey).Bytes()
	return MustNewAddress(AccountPrefix, addrBytes)
}

// PrivateKeyFromBytes restores a private key from its raw bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
