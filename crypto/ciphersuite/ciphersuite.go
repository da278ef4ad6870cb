// Package ciphersuite is the capability bundle spec.md §9 "Polymorphism
// over ciphersuites" asks for: the signing core's network-signer tasks
// (signers.TransactionSignerTask) never hard-code a curve or signature
// scheme, they go through this interface. Generalized from the donor's
// accountsigner.SignerType dispatch (a flat switch over curve names) into
// an interface bundle, one implementation per supported external chain.
package ciphersuite

import (
	"errors"

	"github.com/tos-network/gtos/crypto/clsag"
)

// Name identifies a supported ciphersuite. Mirrors the donor's
// SignerTypeSecp256k1/Secp256r1/Ed25519/BLS12381 constants.
type Name string

const (
	Monero    Name = "clsag-ed25519"
	Ethereum  Name = "secp256k1"
	Bitcoin   Name = "secp256k1"
	Substrate Name = "bls12-381"
)

var ErrUnknownCiphersuite = errors.New("ciphersuite: unknown name")

// Ciphersuite is everything a TransactionSignerTask needs from a concrete
// external-chain signature scheme: how to derive the domain-separated
// message body for a transaction descriptor, and how to turn a completed
// raw signature plus the original descriptor into the bytes a
// TransactionPublisher broadcasts.
type Ciphersuite interface {
	Name() Name
	// SignBody returns the exact byte string the threshold machines sign
	// for an unsigned transaction descriptor (the wire format of which is
	// entirely chain-specific and opaque to this core).
	SignBody(descriptor []byte) []byte
	// Finalize splices a completed raw signature back into descriptor to
	// produce the fully-signed network transaction ready to publish.
	Finalize(descriptor, signature []byte) ([]byte, error)
}

// For returns the registered Ciphersuite for name.
func For(name Name) (Ciphersuite, error) {
	switch name {
	case Monero:
		return moneroCiphersuite{}, nil
	case Ethereum: // Bitcoin has the same Name value
		return secp256k1Ciphersuite{name: name}, nil
	default:
		return nil, ErrUnknownCiphersuite
	}
}

// moneroCiphersuite signs with CLSAG (crypto/clsag), the only ring
// signature scheme this core implements in full (spec.md §4.1).
type moneroCiphersuite struct{}

func (moneroCiphersuite) Name() Name { return Monero }

func (moneroCiphersuite) SignBody(descriptor []byte) []byte {
	return append([]byte("MoneroTx"), descriptor...)
}

// Finalize appends the wire-encoded CLSAG signature to the descriptor; a
// real Monero transaction serializer would instead splice it into the
// rctSig structure at the matching input index, which is out of this
// core's scope (it only produces signatures, not full chain clients).
func (moneroCiphersuite) Finalize(descriptor, signature []byte) ([]byte, error) {
	if len(signature) == 0 {
		return nil, clsag.ErrInvalidS
	}
	out := make([]byte, 0, len(descriptor)+len(signature))
	out = append(out, descriptor...)
	out = append(out, signature...)
	return out, nil
}

// secp256k1Ciphersuite covers the Schnorr/ECDSA-over-secp256k1 externals
// (Ethereum, Bitcoin), both ultimately represented by the same curve and
// the same btcec group law, differing only in their transaction wire
// format (opaque to this core).
type secp256k1Ciphersuite struct{ name Name }

func (c secp256k1Ciphersuite) Name() Name { return c.name }

func (c secp256k1Ciphersuite) SignBody(descriptor []byte) []byte {
	return append([]byte("Secp256k1Tx"), descriptor...)
}

func (secp256k1Ciphersuite) Finalize(descriptor, signature []byte) ([]byte, error) {
	if len(signature) != 64 && len(signature) != 65 {
		return nil, errors.New("ciphersuite: malformed secp256k1 signature")
	}
	out := make([]byte, 0, len(descriptor)+len(signature))
	out = append(out, descriptor...)
	out = append(out, signature...)
	return out, nil
}
