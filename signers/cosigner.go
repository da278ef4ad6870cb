package signers

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/common"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// Cosign is the intent the cosigner signs: a block to attest for
// light-client/bridge finality (spec.md §3, §4.3.1).
type Cosign struct {
	BlockNumber uint64
	BlockHash   common.Hash
}

// SignedCosign is the completed artifact.
type SignedCosign struct {
	Cosign    Cosign
	Signature [64]byte
}

// MachineFactory builds the FROST machines for one VariantSignId, given
// this validator's key shares for the session.
type MachineFactory func(variant signid.VariantSignId) []attemptmanager.Machine

// CosignerTask implements spec.md §4.3.1. Only the latest cosign is worked
// on: if a newer Cosign arrives while another is in flight, the older
// VariantSignId::Cosign is retired first — strictly before registering the
// new one — mirroring the explicit ordering assertion in
// processor/signers/src/cosign/mod.rs.
type CosignerTask struct {
	Session      signid.Session
	DB           durable.DB
	ToCosign     *durable.Channel // intent channel: encoded Cosign
	Messages     *durable.Channel // CoordinatorToCosignerMessages
	Out          *durable.Channel // Cosign[session] outbound
	Machines     MachineFactory
	Manager      *attemptmanager.Manager
	Coordinator  Coordinator
	IsRetired    func() bool

	current         *Cosign
	currentAttempt  uint32
	latestCosigned  uint64
	haveCosignedAny bool
}

func encodeCosign(c Cosign) []byte {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint64(buf[:8], c.BlockNumber)
	copy(buf[8:], c.BlockHash[:])
	return buf
}

func decodeCosign(b []byte) Cosign {
	var c Cosign
	c.BlockNumber = binary.LittleEndian.Uint64(b[:8])
	copy(c.BlockHash[:], b[8:])
	return c
}

// CosignSignBody is the domain-separated message body signed: "Cosign" ||
// block_number_le || block_hash (spec.md §4.3.1), for a MachineFactory
// implementation to build the message each FROST machine signs for
// VariantCosign. sessionmanager takes its MachineFactory from its caller
// and does not call this itself.
func CosignSignBody(c Cosign) []byte {
	buf := []byte("Cosign")
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], c.BlockNumber)
	buf = append(buf, n[:]...)
	buf = append(buf, c.BlockHash[:]...)
	return buf
}

func (t *CosignerTask) registerFor(c Cosign) {
	variant := signid.Cosign(c.BlockNumber)
	id := signid.SignId{Session: t.Session, ID: variant, Attempt: 0}
	machines := t.Machines(variant)
	preprocesses := t.Manager.Register(t.Session, variant, machines)
	t.current = &c
	t.currentAttempt = 0
	t.Coordinator.SendProcessorMessage(t.Session, attemptmanager.ProcessorMessage{
		Preprocesses: &attemptmanager.PreprocessesOut{ID: id, Preprocesses: preprocesses},
	})
}

func (t *CosignerTask) handleIntent(raw []byte) error {
	c := decodeCosign(raw)
	if t.haveCosignedAny && c.BlockNumber <= t.latestCosigned {
		// Stale: a cosign for a block we've already signed can arrive after
		// restart replay. Not an error, just a no-op.
		return nil
	}
	if t.current != nil && c.BlockNumber == t.current.BlockNumber {
		return nil
	}
	if t.current != nil {
		// Retire strictly before registering the newer one.
		t.Manager.Retire(signid.Cosign(t.current.BlockNumber))
		log.Debug("cosigner: superseding in-flight cosign", "session", t.Session, "old", t.current.BlockNumber, "new", c.BlockNumber)
	}
	t.registerFor(c)
	return nil
}

func (t *CosignerTask) handleMessage(raw []byte) error {
	msg, err := DecodeCoordinatorToSignerMessage(raw)
	if err != nil {
		return err
	}
	if t.current == nil {
		return nil
	}
	variant := signid.Cosign(t.current.BlockNumber)
	id := signid.SignId{Session: t.Session, ID: variant, Attempt: t.currentAttempt}

	switch {
	case msg.Preprocesses != nil:
		shares, pm, err := t.Manager.HandlePreprocesses(id, msg.Preprocesses)
		if err != nil {
			return err
		}
		if pm != nil {
			t.Coordinator.SendProcessorMessage(t.Session, *pm)
			return nil
		}
		if shares != nil {
			t.Coordinator.SendProcessorMessage(t.Session, attemptmanager.ProcessorMessage{
				Shares: &attemptmanager.SharesOut{ID: id, Shares: shares},
			})
		}
	case msg.Shares != nil:
		sig, pm, err := t.Manager.HandleShares(id, msg.Shares)
		if err != nil {
			return err
		}
		if pm != nil {
			t.Coordinator.SendProcessorMessage(t.Session, *pm)
			return nil
		}
		if sig != nil {
			return t.complete(*t.current, sig)
		}
	case msg.Reattempt:
		t.currentAttempt++
		pp := t.Manager.HandleReattempt(signid.SignId{Session: t.Session, ID: variant, Attempt: t.currentAttempt})
		if pp != nil {
			t.Coordinator.SendProcessorMessage(t.Session, attemptmanager.ProcessorMessage{
				Preprocesses: &attemptmanager.PreprocessesOut{
					ID:           signid.SignId{Session: t.Session, ID: variant, Attempt: t.currentAttempt},
					Preprocesses: pp,
				},
			})
		}
	}
	return nil
}

func (t *CosignerTask) complete(c Cosign, sig []byte) error {
	var out SignedCosign
	out.Cosign = c
	copy(out.Signature[:], sig)

	txn := t.DB.Txn()
	t.Out.Send(txn, encodeSignedCosign(out))
	if err := txn.Commit(); err != nil {
		return err
	}
	t.latestCosigned = c.BlockNumber
	t.haveCosignedAny = true
	t.current = nil
	log.Info("cosigner: completed", "session", t.Session, "block", c.BlockNumber)
	return nil
}

func encodeSignedCosign(s SignedCosign) []byte {
	buf := encodeCosign(s.Cosign)
	return append(buf, s.Signature[:]...)
}

// Run implements Task. It polls both channels in a tight cooperative loop,
// sleeping briefly when neither has fresh work, and exits when the session
// retires or ctx is cancelled (spec.md §5 "Cancellation").
func (t *CosignerTask) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if t.IsRetired != nil && t.IsRetired() {
			return nil
		}
		did, err := loopOnce(t.DB, t.ToCosign, t.handleIntent, t.Messages, t.handleMessage)
		if err != nil {
			logTaskErr("cosigner", t.Session, err)
			return err
		}
		if !did {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}
