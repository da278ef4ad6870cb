package coordinator

import (
	"github.com/google/uuid"
	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/common"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signers"
	"github.com/tos-network/gtos/signid"
)

// ProcessorMessage is the outbound union of spec.md §6: the Sign family
// (produced by attemptmanager) and the Coordinator family (produced by this
// core's own task completions).
type ProcessorMessage struct {
	Sign        *attemptmanager.ProcessorMessage
	Coordinator *CoordinatorOut
}

type CoordinatorOut struct {
	CosignedBlock     *CosignedBlock
	SignedBatch       *SignedBatch
	SignedSlashReport *SignedSlashReport
}

type CosignedBlock struct {
	BlockNumber uint64
	Block       common.Hash
	Signature   [64]byte
}

type SignedBatch struct {
	Batch     signers.Batch
	Signature []byte
}

type SignedSlashReport struct {
	Session   signid.Session
	Report    []signers.Slash
	Signature []byte
}

// Sink is the transport-facing outbound surface; a real binary wires this
// to whatever RPC or channel carries ProcessorMessage out to the
// coordinator process. Kept minimal and side-effect-free here since wire
// transport is outside this core's scope (spec.md §1 Non-goals).
type Sink interface {
	Send(ProcessorMessage)
}

// send assigns a correlation id to every outbound ProcessorMessage purely
// for log tracing across the coordinator RPC boundary; the id never
// appears on the wire, matching the donor's keystore/toskey use of
// google/uuid for bookkeeping rather than protocol data.
func (d *Dispatcher) send(m ProcessorMessage) {
	id := uuid.New()
	log.Debug("coordinator: sending processor message", "correlation_id", id)
	d.sink.Send(m)
}

// SendProcessorMessage implements signers.Coordinator: every Sign-family
// ProcessorMessage the attempt manager produces, for any of the four
// signer tasks, funnels through the same Sink.
func (d *Dispatcher) SendProcessorMessage(session signid.Session, msg attemptmanager.ProcessorMessage) {
	d.send(ProcessorMessage{Sign: &msg})
}

// PublishSignedBatch implements signers.BatchPublisher.
func (d *Dispatcher) PublishSignedBatch(batch signers.Batch, signature []byte) {
	d.send(ProcessorMessage{Coordinator: &CoordinatorOut{
		SignedBatch: &SignedBatch{Batch: batch, Signature: signature},
	}})
}

// PublishSlashReport implements signers.SlashReportPublisher.
func (d *Dispatcher) PublishSlashReport(session signid.Session, report []signers.Slash, signature []byte) {
	d.send(ProcessorMessage{Coordinator: &CoordinatorOut{
		SignedSlashReport: &SignedSlashReport{Session: session, Report: report, Signature: signature},
	}})
}
