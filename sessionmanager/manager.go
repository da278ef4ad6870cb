// Package sessionmanager implements spec.md §4.4: the owner of every
// currently-live session's four signer task handles, reacting to
// register_keys/retire_session calls from the substrate event stream and
// routing queue_message/cosign_block/sign_slash_report to the right task.
package sessionmanager

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signers"
	"github.com/tos-network/gtos/signid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownSession = errors.New("sessionmanager: unknown session")
)

// sessionHandles is everything the manager owns for one live session: the
// four task instances, their channels, and cancellation.
type sessionHandles struct {
	cosigner     *signers.CosignerTask
	batch        *signers.BatchSignerTask
	transaction  *signers.TransactionSignerTask
	slashReport  *signers.SlashReportSignerTask

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Manager owns Session -> {cosigner, batch, slash_report, transaction}.
type Manager struct {
	mu       sync.RWMutex
	db       durable.DB
	registry *durable.Registry
	sessions map[signid.Session]*sessionHandles

	newMachines signers.MachineFactory
	coordinator signers.Coordinator
	batchPub    signers.BatchPublisher
	txPub       signers.TransactionPublisher
	slashPub    signers.SlashReportPublisher
}

func New(
	db durable.DB,
	newMachines signers.MachineFactory,
	coordinator signers.Coordinator,
	batchPub signers.BatchPublisher,
	txPub signers.TransactionPublisher,
	slashPub signers.SlashReportPublisher,
) *Manager {
	return &Manager{
		db:          db,
		registry:    durable.NewRegistry(db),
		sessions:    make(map[signid.Session]*sessionHandles),
		newMachines: newMachines,
		coordinator: coordinator,
		batchPub:    batchPub,
		txPub:       txPub,
		slashPub:    slashPub,
	}
}

func channelsFor(db durable.DB, session signid.Session) (toCosign, cosignOut, toBatch, batchAcked, toTx, txCompleted, toSlash *durable.Channel,
	cosignMsgs, batchMsgs, txMsgs, slashMsgs *durable.Channel) {
	scope := sessionScope(session)
	toCosign = durable.NewChannel(db, "ToCosign", scope)
	cosignOut = durable.NewChannel(db, "Cosign", scope)
	toBatch = durable.NewChannel(db, "BatchesToSign", scope)
	batchAcked = durable.NewChannel(db, "AcknowledgedBatches", scope)
	toTx = durable.NewChannel(db, "TransactionsToSign", scope)
	txCompleted = durable.NewChannel(db, "CompletedEventualities", scope)
	toSlash = durable.NewChannel(db, "SlashReport", scope)
	cosignMsgs = durable.NewChannel(db, "CoordinatorToCosignerMessages", scope)
	batchMsgs = durable.NewChannel(db, "CoordinatorToBatchSignerMessages", scope)
	txMsgs = durable.NewChannel(db, "CoordinatorToTransactionSignerMessages", scope)
	slashMsgs = durable.NewChannel(db, "CoordinatorToSlashReportSignerMessages", scope)
	return
}

func sessionScope(session signid.Session) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(session))
	return b[:]
}

// RegisterKeys is a NOP if session <= LatestRetiredSession. Otherwise it
// appends session to RegisteredKeys, stores the interleaved
// substrate/network key blob, and spawns the four tasks for this session
// (spec.md §4.4). keys must be the repeating (substrate_share,
// network_share) blob described in SPEC_FULL.md §C.5; ParseKeyBlob
// enforces that it consumes exactly to the end.
func (m *Manager) RegisterKeys(session signid.Session, keys []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, has := m.registry.LatestRetiredSession(); has && uint32(session) <= last {
		log.Debug("register_keys: nop, session already retired", "session", session)
		return nil
	}

	if _, err := ParseKeyBlob(keys); err != nil {
		return err
	}

	txn := m.db.Txn()
	m.registry.PutSerializedKeys(txn, uint32(session), keys)
	if err := txn.Commit(); err != nil {
		return err
	}

	m.spawn(session)
	log.Info("register_keys: spawned session", "session", session)
	return nil
}

func (m *Manager) spawn(session signid.Session) {
	toCosign, cosignOut, toBatch, batchAcked, toTx, txCompleted, toSlash,
		cosignMsgs, batchMsgs, txMsgs, slashMsgs := channelsFor(m.db, session)

	isRetired := func() bool {
		last, has := m.registry.LatestRetiredSession()
		return has && uint32(session) <= last
	}

	h := &sessionHandles{
		cosigner: &signers.CosignerTask{
			Session: session, DB: m.db, ToCosign: toCosign, Messages: cosignMsgs, Out: cosignOut,
			Machines: m.newMachines, Manager: attemptmanager.New(), Coordinator: m.coordinator, IsRetired: isRetired,
		},
		batch: &signers.BatchSignerTask{
			Session: session, DB: m.db, ToSign: toBatch, Acked: batchAcked, Messages: batchMsgs,
			Machines: m.newMachines, Manager: attemptmanager.New(), Coordinator: m.coordinator, Publisher: m.batchPub, IsRetired: isRetired,
		},
		transaction: &signers.TransactionSignerTask{
			Session: session, DB: m.db, ToSign: toTx, Completed: txCompleted, Messages: txMsgs,
			Machines: m.newMachines, Manager: attemptmanager.New(), Coordinator: m.coordinator, Publisher: m.txPub, IsRetired: isRetired,
		},
		slashReport: &signers.SlashReportSignerTask{
			Session: session, DB: m.db, Intent: toSlash, Messages: slashMsgs,
			Machines: m.newMachines, Manager: attemptmanager.New(), Coordinator: m.coordinator, Publisher: m.slashPub, IsRetired: isRetired,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.cosigner.Run(gctx) })
	g.Go(func() error { return h.batch.Run(gctx) })
	g.Go(func() error { return h.transaction.Run(gctx) })
	g.Go(func() error { return h.slashReport.Run(gctx) })
	h.cancel = cancel
	h.group = g

	m.sessions[session] = h
}

// RetireSession asserts session == LatestRetiredSession+1 (or 0 if unset),
// advances LatestRetiredSession, removes the session's registration and key
// blob, appends a ToCleanup entry, and wakes all four tasks so they exit
// promptly (spec.md §4.4, §5 "Cancellation").
func (m *Manager) RetireSession(session signid.Session, externalKeyBytes []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn := m.db.Txn()
	if err := m.registry.RetireSession(txn, uint32(session), externalKeyBytes); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	if h, ok := m.sessions[session]; ok {
		h.cancel()
		delete(m.sessions, session)
	}
	log.Info("retire_session: retired", "session", session)
	return nil
}

// QueueMessage routes by sign_id.id variant to the matching per-session
// coordinator-to-signer channel (spec.md §4.4). No wake signal is sent: the
// task picks the message up on its next polling tick.
func (m *Manager) QueueMessage(id signid.SignId, encoded []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[id.Session]; !ok {
		return ErrUnknownSession
	}
	_, _, _, _, _, _, _, cosignMsgs, batchMsgs, txMsgs, slashMsgs := channelsFor(m.db, id.Session)

	var ch *durable.Channel
	switch id.ID.Kind {
	case signid.VariantCosign:
		ch = cosignMsgs
	case signid.VariantBatch:
		ch = batchMsgs
	case signid.VariantTransaction:
		ch = txMsgs
	case signid.VariantSlashReport:
		ch = slashMsgs
	}

	txn := m.db.Txn()
	ch.Send(txn, encoded)
	return txn.Commit()
}

// CosignBlock appends to ToCosign[session]; the cosigner picks it up on its
// next polling tick.
func (m *Manager) CosignBlock(session signid.Session, cosign signers.Cosign) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[session]; !ok {
		return ErrUnknownSession
	}
	toCosign, _, _, _, _, _, _, _, _, _, _ := channelsFor(m.db, session)
	txn := m.db.Txn()
	toCosign.Send(txn, encodeCosignIntent(cosign))
	return txn.Commit()
}

func encodeCosignIntent(c signers.Cosign) []byte {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint64(buf[:8], c.BlockNumber)
	copy(buf[8:], c.BlockHash[:])
	return buf
}

// SignSlashReport appends to SlashReport[session]; the slash report signer
// picks it up on its next polling tick.
func (m *Manager) SignSlashReport(session signid.Session, report []signers.Slash) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[session]; !ok {
		return ErrUnknownSession
	}
	_, _, _, _, _, _, toSlash, _, _, _, _ := channelsFor(m.db, session)
	txn := m.db.Txn()
	toSlash.Send(txn, encodeSlashReportIntent(report))
	return txn.Commit()
}

func encodeSlashReportIntent(report []signers.Slash) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(report)))
	for _, s := range report {
		buf = append(buf, s.Validator[:]...)
		var a [8]byte
		binary.LittleEndian.PutUint64(a[:], s.Amount)
		buf = append(buf, a[:]...)
	}
	return buf
}
