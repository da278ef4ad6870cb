package ciphersuite

import (
	blst "github.com/supranational/blst/bindings/go"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

var substrateSignDst = []byte("SERAI_BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_")

// VerifySubstrateAggregate checks a BLS12-381 signature against an
// aggregated validator-set public key. No package in this module calls it;
// coordinator's NotableCosigns response decoding (envelope.go) does not
// verify signatures. Grounded directly on the donor's
// verifyBLS12381Signature.
func VerifySubstrateAggregate(aggregatedPub, sig, msg []byte) bool {
	if len(aggregatedPub) != 48 || len(sig) != 96 {
		return false
	}
	var p blst.P2Affine
	return p.VerifyCompressed(sig, true, aggregatedPub, true, msg, substrateSignDst)
}

// VerifySecp256k1 checks a raw (64-byte r||s) ECDSA signature over a
// 32-byte digest against a compressed or uncompressed secp256k1 public
// key. No package in this module calls it; the transaction signer hands
// signatures to its publisher without this check. Grounded on the donor's
// accounts/keystore key-handling use of btcec.PrivKeyFromBytes and its
// VerifyRawSignature dispatch.
func VerifySecp256k1(pub, sig, digest []byte) bool {
	if len(sig) != 64 {
		return false
	}
	pk, err := btcec.ParsePubKey(pub)
	if err != nil {
		return false
	}
	var rBytes, sBytes [32]byte
	copy(rBytes[:], sig[:32])
	copy(sBytes[:], sig[32:])
	r := new(btcec.ModNScalar)
	r.SetBytes(&rBytes)
	s := new(btcec.ModNScalar)
	s.SetBytes(&sBytes)
	signature := ecdsa.NewSignature(r, s)
	return signature.Verify(digest, pk)
}
