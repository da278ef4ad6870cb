// Package common provides the fixed-size byte types (Hash, Address) used
// throughout this module, mirroring the donor's own common package
// (referenced pervasively as github.com/tos-network/gtos/common but not
// itself part of the retrieved reference pack) closely enough to be a
// drop-in: same sizes, same BytesToHash/BytesToAddress/Hex conventions.
package common

import "encoding/hex"

const (
	HashLength    = 32
	AddressLength = 20
)

// Hash is a fixed 32-byte value, used for block hashes, batch hashes, and
// transaction ids throughout the signing core.
type Hash [HashLength]byte

// BytesToHash sets the rightmost HashLength bytes of b into a Hash,
// truncating from the left if b is longer (go-ethereum convention).
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// Address is a fixed 20-byte value, used for validator/account identity.
type Address [AddressLength]byte

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }
