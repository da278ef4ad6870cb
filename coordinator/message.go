// Package coordinator implements spec.md §6 "External Interfaces": the
// inbound CoordinatorMessage / outbound ProcessorMessage tagged unions, the
// intent-keyed dedup boundary (§4.5), and dispatch into sessionmanager.
package coordinator

import (
	"encoding/binary"
	"errors"

	"github.com/tos-network/gtos/common"
	"github.com/tos-network/gtos/signers"
	"github.com/tos-network/gtos/signid"
)

var ErrMalformedMessage = errors.New("coordinator: malformed message")

// KeyPair is the substrate/network key material attached to a SetKeys
// message, matching the register_keys payload sessionmanager.ParseKeyBlob
// consumes.
type KeyPair struct {
	SubstrateKey [32]byte
	NetworkKey   []byte
}

// CoordinatorMessage is the inbound union of spec.md §6. Exactly one
// top-level family is populated, and within it exactly one variant.
type CoordinatorMessage struct {
	GenerateKey        *GenerateKey
	Participation       *Participation
	Preprocesses        *Preprocesses
	Shares              *Shares
	Reattempt           *Reattempt
	CosignSubstrateBlock *CosignSubstrateBlock
	SignSlashReport     *SignSlashReportMsg
	SetKeys             *SetKeys
	SlashesReported     *SlashesReported
}

type GenerateKey struct {
	Session   signid.Session
	Threshold uint16
	EvrfPublicKeys [][]byte
}

type Participation struct {
	Session     signid.Session
	Participant uint16
	Data        []byte
}

type Preprocesses struct {
	ID           signid.SignId
	Preprocesses map[uint16][]byte
}

type Shares struct {
	ID     signid.SignId
	Shares map[uint16][]byte
}

type Reattempt struct {
	ID signid.SignId
}

type CosignSubstrateBlock struct {
	Session     signid.Session
	BlockNumber uint64
	Block       common.Hash
}

type SignSlashReportMsg struct {
	Session signid.Session
	Report  []signers.Slash
}

type SetKeys struct {
	SeraiTime uint64
	Session   signid.Session
	KeyPair   KeyPair
}

type SlashesReported struct {
	Session signid.Session
}

// Intent computes the stable dedup identity for m (spec.md §4.5). Only
// CosignSubstrateBlock and SignSlashReport need a deliberately-narrowed
// body (session and block number, without the block hash; session alone) —
// every other variant's sign
// id or session is already its full non-duplication key.
func (m CoordinatorMessage) Intent() ([]byte, error) {
	const (
		subGenerateKey          byte = 0
		subParticipation        byte = 1
		subPreprocesses         byte = 2
		subShares               byte = 3
		subReattempt            byte = 4
		subCosignSubstrateBlock byte = 5
		subSignSlashReport      byte = 6
		subSetKeys              byte = 7
		subSlashesReported      byte = 8
	)
	switch {
	case m.GenerateKey != nil:
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeKeyGen, subGenerateKey, sessionBody(m.GenerateKey.Session)), nil
	case m.Participation != nil:
		body := sessionBody(m.Participation.Session)
		var p [2]byte
		binary.LittleEndian.PutUint16(p[:], m.Participation.Participant)
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeKeyGen, subParticipation, append(body, p[:]...)), nil
	case m.Preprocesses != nil:
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeSign, subPreprocesses, m.Preprocesses.ID.Encode()), nil
	case m.Shares != nil:
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeSign, subShares, m.Shares.ID.Encode()), nil
	case m.Reattempt != nil:
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeSign, subReattempt, m.Reattempt.ID.Encode()), nil
	case m.CosignSubstrateBlock != nil:
		// Deliberately session and block_number, excluding the block hash: two
		// cosign requests for the same height are the same logical action
		// (spec.md §8 scenario C).
		body := sessionBody(m.CosignSubstrateBlock.Session)
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], m.CosignSubstrateBlock.BlockNumber)
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeCoordinator, subCosignSubstrateBlock, append(body, n[:]...)), nil
	case m.SignSlashReport != nil:
		// Session alone: at most one slash report per session (spec.md §8
		// invariant 9).
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeCoordinator, subSignSlashReport, sessionBody(m.SignSlashReport.Session)), nil
	case m.SetKeys != nil:
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeSubstrate, subSetKeys, sessionBody(m.SetKeys.Session)), nil
	case m.SlashesReported != nil:
		return signid.BuildIntent(signid.OriginCoordinator, signid.MsgTypeSubstrate, subSlashesReported, sessionBody(m.SlashesReported.Session)), nil
	default:
		return nil, ErrMalformedMessage
	}
}

func sessionBody(s signid.Session) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(s))
	return b[:]
}
