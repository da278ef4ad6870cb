package clsag

import (
	"crypto/subtle"
	"errors"

	"filippo.io/edwards25519"
)

// Multisig extension (spec §4.1): the attempt manager drives two rounds
// (preprocess, share) over the wire; this file is the signer-core contract
// those rounds feed into. Under threshold multisig, A and AH are the SUM
// of per-party nonce commitments, and the final s_r is the sum of per-party
// linear responses over the distributed key x. The transcript and every
// other round computation is identical to the single-signer case.

var ErrMismatchedParticipants = errors.New("clsag: share count does not match preprocess count")

// Preprocess is one participant's nonce-commitment contribution: the two
// points A_j = a_j*G and AH_j = a_j*H_p(P_r), plus the nonce a_j itself
// (kept locally, never transmitted — only A_j/AH_j go on the wire).
type Preprocess struct {
	A, AH  *Point
	nonceA *Scalar
}

// NewPreprocess samples this participant's nonce and commits to it.
func NewPreprocess(ring []RingMember, r int) (Preprocess, error) {
	a, err := randomScalar()
	if err != nil {
		return Preprocess{}, err
	}
	hp, err := hashToPoint(ring[r].P)
	if err != nil {
		return Preprocess{}, err
	}
	return Preprocess{
		A:      edwards25519.NewIdentityPoint().ScalarBaseMult(a),
		AH:     edwards25519.NewIdentityPoint().ScalarMult(a, hp),
		nonceA: a,
	}, nil
}

// sumPoints aggregates every participant's A or AH contribution.
func sumPoints(pts []*Point) *Point {
	out := edwards25519.NewIdentityPoint()
	for _, p := range pts {
		out.Add(out, p)
	}
	return out
}

// PreprocessRound aggregates every participant's Preprocess into the
// group nonce commitment (A, AH) and the group challenge at the starting
// index, mirroring the single-signer transcript computation exactly.
func PreprocessRound(
	ring []RingMember, r int, open Commitment, z *Scalar, image *Point, msg [32]byte,
	preprocesses []Preprocess,
) (groupA, groupAH *Point, pseudoOut *Point, maskDelta *Scalar, challenge *Scalar) {
	as := make([]*Point, len(preprocesses))
	ahs := make([]*Point, len(preprocesses))
	for i, p := range preprocesses {
		as[i] = p.A
		ahs[i] = p.AH
	}
	groupA = sumPoints(as)
	groupAH = sumPoints(ahs)
	pseudoOut = commit(Commitment{Mask: z, Amount: open.Amount})
	maskDelta = edwards25519.NewScalar().Subtract(open.Mask, z)
	tPrefix := roundTranscriptPrefix(ring, pseudoOut, msg)
	challenge = keccak256ToScalar(tPrefix, groupA.Bytes(), groupAH.Bytes())
	return
}

// Share is one participant's linear response to the round challenge.
type Share struct {
	S *Scalar
}

// SignShare computes this participant's contribution to s_r given the
// group-aggregated nonce and challenge produced by PreprocessRound, and
// this participant's key share xi (the sum of all participants' xi across
// the signing set reconstructs the group private key for P_r under FROST's
// linear secret sharing — reconstruction itself is out of scope here and
// lives in the attempt manager's FROST machine).
func SignShare(
	ring []RingMember, r int, xi *Scalar, maskShareDelta *Scalar,
	nonceA *Scalar, cForR *Scalar, muP, muC *Scalar,
) Share {
	muPc := edwards25519.NewScalar().Multiply(muP, cForR)
	muCc := edwards25519.NewScalar().Multiply(muC, cForR)
	s := edwards25519.NewScalar().Subtract(
		nonceA,
		edwards25519.NewScalar().Add(
			edwards25519.NewScalar().Multiply(muPc, xi),
			edwards25519.NewScalar().Multiply(muCc, maskShareDelta),
		),
	)
	return Share{S: s}
}

// AggregateShares sums every participant's share into the final s_r.
// expectedParticipants is the threshold set size decided when the round
// opened; a mismatch means a participant's share never arrived or arrived
// twice under the same id, a bookkeeping bug in the caller rather than a
// cryptographic fault. The caller is responsible for having already
// validated each Share against its participant's known preprocess
// (attemptmanager's blame rule) before calling this — AggregateShares
// itself performs no per-participant verification.
func AggregateShares(shares []Share, expectedParticipants int) (*Scalar, error) {
	if len(shares) != expectedParticipants {
		return nil, ErrMismatchedParticipants
	}
	out := edwards25519.NewScalar()
	for _, sh := range shares {
		out.Add(out, sh.S)
	}
	return out, nil
}

// FinishMultisig assembles the complete CLSAG signature once s_r has been
// produced by AggregateShares. groupChallenge is the value PreprocessRound
// returned as `challenge` (the input for index r+1), exactly mirroring
// Sign's use of its freshly computed starting c. s holds every ring
// member's scalar, with index r overwritten by groupSR.
func FinishMultisig(
	ring []RingMember, r int, s []*Scalar, image, pseudoOut, dWire *Point,
	msg [32]byte, groupSR, groupChallenge *Scalar,
) (Signature, error) {
	s[r] = groupSR
	n := len(ring)
	hashPoints := make([]*Point, n)
	for i, m := range ring {
		hpi, err := hashToPoint(m.P)
		if err != nil {
			return Signature{}, err
		}
		hashPoints[i] = hpi
	}
	start := (r + 1) % n
	t := newTranscript(ring, image, dWire, pseudoOut, msg)
	c := groupChallenge
	c0 := edwards25519.NewScalar()
	for iter := 0; iter < n-1; iter++ {
		i := (start + iter) % n
		assignScalarIfTrue(c0, c, subtle.ConstantTimeEq(int32(i), 0))
		c = t.step(ring, image, pseudoOut, hashPoints[i], s, c, i)
	}
	assignScalarIfTrue(c0, c, subtle.ConstantTimeEq(int32(r), 0))
	return Signature{S: s, C1: c0, D: dWire}, nil
}
