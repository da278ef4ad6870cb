package signers

import (
	"context"
	"time"

	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/common"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// BatchPublisher is the substrate transaction sink for completed batches
// (spec.md §1 "a transaction sink"; §9 open question C.7 in SPEC_FULL.md).
type BatchPublisher interface {
	PublishSignedBatch(batch Batch, signature []byte)
}

// BatchSignerTask implements spec.md §4.3.2. Intent: BatchesToSign keyed
// by external_key (represented here by the session, since this core scopes
// external-chain keys to a session's threshold key set). Acknowledged
// batches retire the corresponding VariantSignId::Batch.
type BatchSignerTask struct {
	Session     signid.Session
	DB          durable.DB
	ToSign      *durable.Channel // intent: encoded Batch
	Acked       *durable.Channel // AcknowledgedBatches: encoded batch hash
	Messages    *durable.Channel
	Machines    MachineFactory
	Manager     *attemptmanager.Manager
	Coordinator Coordinator
	Publisher   BatchPublisher
	IsRetired   func() bool

	inFlight map[common.Hash]Batch
}

func batchHash(b Batch) common.Hash {
	// A content hash over the batch id + block + instructions, stable for
	// a given batch content, used only as this task's VariantSignId key
	// (not Serai's canonical batch hash format, which is out of scope).
	h := common.Hash{}
	var acc uint64
	for _, ins := range b.Instructions {
		for _, by := range ins.Encoded {
			acc = acc*1099511628211 ^ uint64(by)
		}
	}
	acc ^= uint64(b.ID)
	for i := range b.Block {
		h[i] = b.Block[i] ^ byte(acc>>(8*(i%8)))
	}
	return h
}

func (t *BatchSignerTask) handleIntent(raw []byte) error {
	b, err := decodeBatch(raw)
	if err != nil {
		return err
	}
	if t.inFlight == nil {
		t.inFlight = make(map[common.Hash]Batch)
	}
	h := batchHash(b)
	if _, ok := t.inFlight[h]; ok {
		return nil
	}
	t.inFlight[h] = b
	variant := signid.Batch(h)
	id := signid.SignId{Session: t.Session, ID: variant, Attempt: 0}
	machines := t.Machines(variant)
	preprocesses := t.Manager.Register(t.Session, variant, machines)
	t.Coordinator.SendProcessorMessage(t.Session, attemptmanager.ProcessorMessage{
		Preprocesses: &attemptmanager.PreprocessesOut{ID: id, Preprocesses: preprocesses},
	})
	return nil
}

func (t *BatchSignerTask) handleAck(raw []byte) error {
	var h common.Hash
	copy(h[:], raw)
	t.Manager.Retire(signid.Batch(h))
	delete(t.inFlight, h)
	log.Debug("batch signer: retiring acknowledged batch", "session", t.Session, "hash", h)
	return nil
}

func (t *BatchSignerTask) handleMessage(raw []byte) error {
	msg, err := DecodeCoordinatorToSignerMessage(raw)
	if err != nil {
		return err
	}
	for h, b := range t.inFlight {
		variant := signid.Batch(h)
		id := signid.SignId{Session: t.Session, ID: variant, Attempt: 0}
		switch {
		case msg.Preprocesses != nil:
			shares, pm, err := t.Manager.HandlePreprocesses(id, msg.Preprocesses)
			if err != nil {
				return err
			}
			if pm != nil {
				t.Coordinator.SendProcessorMessage(t.Session, *pm)
				continue
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
				continue
			}
			if sig != nil {
				t.Publisher.PublishSignedBatch(b, sig)
				log.Info("batch signer: published signed batch", "session", t.Session, "batch_id", b.ID)
			}
		}
	}
	return nil
}

func (t *BatchSignerTask) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if t.IsRetired != nil && t.IsRetired() {
			return nil
		}
		did, err := loopOnce(t.DB, t.ToSign, t.handleIntent, t.Messages, t.handleMessage)
		if err != nil {
			logTaskErr("batch", t.Session, err)
			return err
		}
		did2, err := loopOnce(t.DB, t.Acked, t.handleAck, t.Messages, t.handleMessage)
		if err != nil {
			logTaskErr("batch", t.Session, err)
			return err
		}
		if !did && !did2 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}

func decodeBatch(raw []byte) (Batch, error) {
	if len(raw) < 40 {
		return Batch{}, ErrMalformedMessage
	}
	var b Batch
	b.ID = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	copy(b.Block[:], raw[4:36])
	count := uint32(raw[36]) | uint32(raw[37])<<8 | uint32(raw[38])<<16 | uint32(raw[39])<<24
	off := 40
	for i := uint32(0); i < count; i++ {
		if off+4 > len(raw) {
			return Batch{}, ErrMalformedMessage
		}
		l := int(uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24)
		off += 4
		if off+l > len(raw) {
			return Batch{}, ErrMalformedMessage
		}
		b.Instructions = append(b.Instructions, InInstruction{Encoded: raw[off : off+l]})
		off += l
	}
	if off != len(raw) {
		return Batch{}, ErrMalformedMessage
	}
	return b, nil
}

func encodeBatch(b Batch) []byte {
	buf := make([]byte, 40)
	buf[0] = byte(b.ID)
	buf[1] = byte(b.ID >> 8)
	buf[2] = byte(b.ID >> 16)
	buf[3] = byte(b.ID >> 24)
	copy(buf[4:36], b.Block[:])
	count := uint32(len(b.Instructions))
	buf[36] = byte(count)
	buf[37] = byte(count >> 8)
	buf[38] = byte(count >> 16)
	buf[39] = byte(count >> 24)
	for _, ins := range b.Instructions {
		l := uint32(len(ins.Encoded))
		buf = append(buf, byte(l), byte(l>>8), byte(l>>16), byte(l>>24))
		buf = append(buf, ins.Encoded...)
	}
	return buf
}
