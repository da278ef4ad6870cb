package clsag

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"filippo.io/edwards25519"

	"github.com/tos-network/gtos/log"
)

// ErrCommitmentMismatch is returned by Sign (not Verify — Verify never sees
// the opening) when the signer's claimed ring-member commitment does not
// match the commitment they actually control. This is a construction-time
// check, matching "Invariant: ring[r].C == commitment(r).calculate()" in
// the data model.
var ErrCommitmentMismatch = errors.New("clsag: ring member commitment does not match opening")

// SecretKey is the discrete log of ring[r].P: P_r = x*G.
type SecretKey = Scalar

// Sign produces a single-signer CLSAG signature. x is the signer's private
// key for ring[r].P; open is the opening of ring[r].C; z is a fresh mask
// for the pseudo-output commitment C' = z*G + amount*H (the pseudo-output
// rebinds the same amount under a new mask, so its amount always equals
// open.Amount). image is the key image I = x*H_p(P_r).
func Sign(
	ring []RingMember, r int, x *SecretKey, open Commitment,
	z *Scalar, image *Point, msg [32]byte,
) (Signature, *Point, error) {
	n := len(ring)
	if n < 1 || n > MaxRingSize {
		return Signature{}, nil, ErrInvalidRing
	}
	if r < 0 || r >= n {
		return Signature{}, nil, ErrInvalidRingMember
	}
	if commit(open).Equal(ring[r].C) != 1 {
		return Signature{}, nil, ErrCommitmentMismatch
	}

	pseudoOut := commit(Commitment{Mask: z, Amount: open.Amount})

	a, err := randomScalar()
	if err != nil {
		return Signature{}, nil, err
	}
	hashPoints := make([]*Point, n)
	for i, m := range ring {
		hpi, err := hashToPoint(m.P)
		if err != nil {
			return Signature{}, nil, err
		}
		hashPoints[i] = hpi
	}
	hp := hashPoints[r]
	A := edwards25519.NewIdentityPoint().ScalarBaseMult(a)
	AH := edwards25519.NewIdentityPoint().ScalarMult(a, hp)

	// D = (mask* - z) * H_p(P_r); wire form is cofactor-divided.
	maskDelta := edwards25519.NewScalar().Subtract(open.Mask, z)
	dFull := edwards25519.NewIdentityPoint().ScalarMult(maskDelta, hp)
	dWire := cofactorDivide(dFull)

	s := make([]*Scalar, n)
	for i := range s {
		if i == r {
			continue
		}
		sc, err := randomScalar()
		if err != nil {
			return Signature{}, nil, err
		}
		s[i] = sc
	}
	s[r] = edwards25519.NewScalar() // unused by step() until filled below

	t := newTranscript(ring, image, dWire, pseudoOut, msg)
	tPrefix := roundTranscriptPrefix(ring, pseudoOut, msg)
	c := keccak256ToScalar(tPrefix, A.Bytes(), AH.Bytes())

	// The loop walks every ring index except r, in cycle order starting
	// right after r and ending right before r again. Two values fall out:
	// c0, the challenge that would precede processing index 0 (stored as
	// C1, since verification restarts the same cycle at index 0); and the
	// value after the final step, which is the challenge that precedes
	// processing index r itself — exactly what s[r] must be solved against.
	start := (r + 1) % n
	// Both captures of c0 are constant-time selections, not branches on r.
	c0 := edwards25519.NewScalar()
	for iter := 0; iter < n-1; iter++ {
		i := (start + iter) % n
		assignScalarIfTrue(c0, c, subtle.ConstantTimeEq(int32(i), 0))
		c = t.step(ring, image, pseudoOut, hashPoints[i], s, c, i)
	}
	// When r == 0, index 0 is r, excluded from the loop; the cycle slot for
	// index 0 and for index r coincide, and both equal the post-loop value.
	assignScalarIfTrue(c0, c, subtle.ConstantTimeEq(int32(r), 0))
	c1 := c0
	cForR := c

	muPcForR := edwards25519.NewScalar().Multiply(t.muP, cForR)
	muCcForR := edwards25519.NewScalar().Multiply(t.muC, cForR)
	s[r] = edwards25519.NewScalar().Subtract(
		a,
		edwards25519.NewScalar().Add(
			edwards25519.NewScalar().Multiply(muPcForR, x),
			edwards25519.NewScalar().Multiply(muCcForR, maskDelta),
		),
	)

	return Signature{S: s, C1: c1, D: dWire}, pseudoOut, nil
}

func commit(c Commitment) *Point {
	var amt [32]byte
	putUint64LE(amt[:], c.Amount)
	amtScalar, err := edwards25519.NewScalar().SetCanonicalBytes(amt[:])
	if err != nil {
		panic(err)
	}
	out := edwards25519.NewIdentityPoint().ScalarBaseMult(c.Mask)
	out.Add(out, edwards25519.NewIdentityPoint().ScalarMult(amtScalar, generatorH()))
	return out
}

func putUint64LE(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

// generatorH is the second independent Pedersen generator, derived by
// mapping the standard base point the same way hashToPoint maps an
// arbitrary ring member's key onto the curve. The base point always
// lands on a valid encoding well within hashToPointCandidates, so this
// is only ever computed once and cached.
var cachedGeneratorH *Point

func generatorH() *Point {
	if cachedGeneratorH != nil {
		return cachedGeneratorH
	}
	h, err := hashToPoint(edwards25519.NewGeneratorPoint())
	if err != nil {
		// The base point is a fixed, public constant; if this ever failed it
		// would mean hashToPointCandidates is mis-sized, an invariant bug,
		// not a runtime/input condition.
		log.Crit("clsag: generatorH construction exhausted candidate bound", "err", err)
	}
	cachedGeneratorH = h
	return h
}

func randomScalar() (*Scalar, error) {
	var b [64]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	return edwards25519.NewScalar().SetUniformBytes(b[:])
}
