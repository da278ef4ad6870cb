// Package signid names the signable artifacts of the signing core and the
// stable intent byte-strings used to deduplicate messages about them across
// the coordinator/processor boundary.
package signid

import (
	"encoding/binary"
	"fmt"

	"github.com/tos-network/gtos/common"
)

// Session is a monotonically increasing validator-set generation index.
// Sessions retire in strict order: retiring S requires every S' < S to have
// already retired.
type Session uint32

func (s Session) String() string { return fmt.Sprintf("session:%d", uint32(s)) }

// VariantKind discriminates the four kinds of signable artifact.
type VariantKind uint8

const (
	VariantCosign VariantKind = iota
	VariantBatch
	VariantSlashReport
	VariantTransaction
)

func (k VariantKind) String() string {
	switch k {
	case VariantCosign:
		return "Cosign"
	case VariantBatch:
		return "Batch"
	case VariantSlashReport:
		return "SlashReport"
	case VariantTransaction:
		return "Transaction"
	default:
		return "Unknown"
	}
}

// VariantSignId tags the identity of a signable artifact. Exactly one of
// BlockNumber / BatchHash / TxID is meaningful, selected by Kind.
type VariantSignId struct {
	Kind        VariantKind
	BlockNumber uint64      // Cosign
	BatchHash   common.Hash // Batch
	TxID        common.Hash // Transaction
	// SlashReport carries no payload: at most one per session.
}

func Cosign(blockNumber uint64) VariantSignId {
	return VariantSignId{Kind: VariantCosign, BlockNumber: blockNumber}
}

func Batch(hash common.Hash) VariantSignId {
	return VariantSignId{Kind: VariantBatch, BatchHash: hash}
}

func SlashReport() VariantSignId {
	return VariantSignId{Kind: VariantSlashReport}
}

func Transaction(txID common.Hash) VariantSignId {
	return VariantSignId{Kind: VariantTransaction, TxID: txID}
}

// Encode produces a stable, comparable byte string for use as a map key.
// It is NOT the wire intent (see BuildIntent) — it additionally needs no
// protocol-origin/type tagging since it is only ever compared to other
// VariantSignId values, never to arbitrary wire bytes.
func (v VariantSignId) Encode() []byte {
	buf := make([]byte, 0, 41)
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case VariantCosign:
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], v.BlockNumber)
		buf = append(buf, n[:]...)
	case VariantBatch:
		buf = append(buf, v.BatchHash[:]...)
	case VariantTransaction:
		buf = append(buf, v.TxID[:]...)
	case VariantSlashReport:
		// no payload
	}
	return buf
}

func (v VariantSignId) String() string {
	switch v.Kind {
	case VariantCosign:
		return fmt.Sprintf("Cosign(%d)", v.BlockNumber)
	case VariantBatch:
		return fmt.Sprintf("Batch(%x)", v.BatchHash)
	case VariantTransaction:
		return fmt.Sprintf("Transaction(%x)", v.TxID)
	case VariantSlashReport:
		return "SlashReport"
	default:
		return "Unknown"
	}
}

// SignId uniquely names one protocol instance. Two messages with equal
// SignId belong to the same attempt.
type SignId struct {
	Session Session
	ID      VariantSignId
	Attempt uint32
}

func (s SignId) Encode() []byte {
	buf := make([]byte, 0, 45)
	var se [4]byte
	binary.LittleEndian.PutUint32(se[:], uint32(s.Session))
	buf = append(buf, se[:]...)
	buf = append(buf, s.ID.Encode()...)
	var at [4]byte
	binary.LittleEndian.PutUint32(at[:], s.Attempt)
	buf = append(buf, at[:]...)
	return buf
}

func (s SignId) String() string {
	return fmt.Sprintf("%s/%s/attempt=%d", s.Session, s.ID, s.Attempt)
}
