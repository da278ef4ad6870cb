package coordinator

import (
	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/sessionmanager"
	"github.com/tos-network/gtos/signers"
	"github.com/tos-network/gtos/signid"
)

// SessionManager is the narrow surface Dispatcher drives; satisfied by
// *sessionmanager.Manager.
type SessionManager interface {
	RegisterKeys(session signid.Session, keys []byte) error
	RetireSession(session signid.Session, externalKeyBytes []byte) error
	QueueMessage(id signid.SignId, encoded []byte) error
	CosignBlock(session signid.Session, cosign signers.Cosign) error
	SignSlashReport(session signid.Session, report []signers.Slash) error
}

var _ SessionManager = (*sessionmanager.Manager)(nil)

// Dispatcher implements spec.md §6's inbound routing: deduplicate by
// intent (§4.5), then route by message family into the session manager.
// It also implements signers.Coordinator and the two publisher interfaces
// signers.BatchPublisher and signers.SlashReportPublisher, so a binary can
// wire one Dispatcher both ways.
type Dispatcher struct {
	db   durable.DB
	sm   SessionManager
	sink Sink
}

func NewDispatcher(db durable.DB, sm SessionManager, sink Sink) *Dispatcher {
	return &Dispatcher{db: db, sm: sm, sink: sink}
}

// Handle routes msg after checking its intent for dedup; the intent is
// recorded as seen only once routing succeeded. A duplicate is a silent
// no-op, not an error (spec.md §4.5).
func (d *Dispatcher) Handle(msg CoordinatorMessage) error {
	intent, err := msg.Intent()
	if err != nil {
		return err
	}

	txn := d.db.Txn()
	if seen(d.db, txn, intent) {
		log.Debug("coordinator: dropping duplicate intent")
		return nil
	}
	if err := d.route(msg); err != nil {
		return err
	}
	return txn.Commit()
}

// route applies msg's side effects by message family.
func (d *Dispatcher) route(msg CoordinatorMessage) error {
	switch {
	case msg.SetKeys != nil:
		return d.handleSetKeys(*msg.SetKeys)
	case msg.SlashesReported != nil:
		log.Debug("coordinator: slashes reported", "session", msg.SlashesReported.Session)
		return nil
	case msg.CosignSubstrateBlock != nil:
		c := msg.CosignSubstrateBlock
		return d.sm.CosignBlock(c.Session, signers.Cosign{BlockNumber: c.BlockNumber, BlockHash: c.Block})
	case msg.SignSlashReport != nil:
		return d.sm.SignSlashReport(msg.SignSlashReport.Session, msg.SignSlashReport.Report)
	case msg.Preprocesses != nil:
		encoded := signers.EncodeCoordinatorToSignerMessage(signers.CoordinatorToSignerMessage{
			Preprocesses: toParticipantMap(msg.Preprocesses.Preprocesses),
		})
		return d.sm.QueueMessage(msg.Preprocesses.ID, encoded)
	case msg.Shares != nil:
		encoded := signers.EncodeCoordinatorToSignerMessage(signers.CoordinatorToSignerMessage{
			Shares: toParticipantMap(msg.Shares.Shares),
		})
		return d.sm.QueueMessage(msg.Shares.ID, encoded)
	case msg.Reattempt != nil:
		encoded := signers.EncodeCoordinatorToSignerMessage(signers.CoordinatorToSignerMessage{Reattempt: true})
		return d.sm.QueueMessage(msg.Reattempt.ID, encoded)
	case msg.GenerateKey != nil, msg.Participation != nil:
		// Key generation is a distinct pipeline upstream of this core (the
		// signing core consumes its output via SetKeys), so these variants
		// are intentionally not routed any further here.
		return nil
	default:
		return ErrMalformedMessage
	}
}

// RetireSession passes through to the session manager. The substrate
// event stream (outside this core's scope) calls this directly rather
// than through a CoordinatorMessage variant — retirement is driven by
// validator-set rotation, not by a processor-facing message (spec.md §3
// "Session").
func (d *Dispatcher) RetireSession(session signid.Session, externalKeyBytes []byte) error {
	return d.sm.RetireSession(session, externalKeyBytes)
}

func (d *Dispatcher) handleSetKeys(m SetKeys) error {
	blob := sessionmanager.EncodeKeyBlob([]sessionmanager.KeyShare{{
		Substrate: m.KeyPair.SubstrateKey[:],
		Network:   m.KeyPair.NetworkKey,
	}})
	return d.sm.RegisterKeys(m.Session, blob)
}

func toParticipantMap(m map[uint16][]byte) map[attemptmanager.Participant][]byte {
	out := make(map[attemptmanager.Participant][]byte, len(m))
	for k, v := range m {
		out[attemptmanager.Participant(k)] = v
	}
	return out
}
