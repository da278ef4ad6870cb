package sessionmanager

import (
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// Boot drains every ToCleanup entry's channels and respawns tasks for every
// still-registered session, in that order (spec.md §4.4 "Boot cleanup"):
// a session that was mid-retirement when the process last exited must
// finish having its channels freed before anything else runs, and a
// session that never got fully retired must resume signing exactly where
// the durable channels left off (TryRecv/Ack cursors already encode that).
func (m *Manager) Boot() {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.registry.ToCleanup()
	for i, e := range entries {
		m.drainSession(e.Session)
		txn := m.db.Txn()
		m.registry.DeleteCleanupEntry(txn, uint64(i))
		if err := txn.Commit(); err != nil {
			log.Error("boot cleanup: failed to delete cleanup entry", "session", e.Session, "err", err)
		}
	}

	last, hasRetired := m.registry.LatestRetiredSession()
	// Sessions are registered in strictly increasing order and only ever
	// retired in a contiguous prefix, so the live set is exactly
	// (last+1 .. ) among whatever has a stored key blob.
	start := uint32(0)
	if hasRetired {
		start = last + 1
	}
	for s := start; m.registry.IsRegistered(s); s++ {
		log.Info("boot: resuming registered session", "session", s)
		m.spawn(signid.Session(s))
	}
}

func (m *Manager) drainSession(session uint32) {
	toCosign, cosignOut, toBatch, batchAcked, toTx, txCompleted, toSlash,
		cosignMsgs, batchMsgs, txMsgs, slashMsgs := channelsFor(m.db, signid.Session(session))

	txn := m.db.Txn()
	for _, ch := range []*durable.Channel{toCosign, cosignOut, toBatch, batchAcked, toTx, txCompleted, toSlash,
		cosignMsgs, batchMsgs, txMsgs, slashMsgs} {
		ch.Drain(txn)
	}
	if err := txn.Commit(); err != nil {
		log.Error("boot cleanup: failed to drain session channels", "session", session, "err", err)
	}
}
