package durable

import (
	"encoding/binary"

	"github.com/tos-network/gtos/log"
)

// Registry stores the process-wide (but persisted, never in-memory-only —
// spec.md §9 "Global mutable state") bookkeeping rows: RegisteredKeys,
// SerializedKeys, LatestRetiredSession and ToCleanup.
type Registry struct {
	db DB
}

func NewRegistry(db DB) *Registry { return &Registry{db: db} }

var (
	registeredKeysDomain = "RegisteredKeys"
	serializedKeysDomain = "SerializedKeys"
	latestRetiredKey     = key("LatestRetiredSession")
	toCleanupCountKey    = key("ToCleanup.count")
)

func sessionKey(domain string, session uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], session)
	return key(domain, b[:])
}

// IsRegistered reports whether session currently has live keys.
func (r *Registry) IsRegistered(session uint32) bool {
	_, ok := r.db.Get(sessionKey(serializedKeysDomain, session))
	return ok
}

// LatestRetiredSession returns the last retired session, and whether any
// session has ever been retired.
func (r *Registry) LatestRetiredSession() (uint32, bool) {
	v, ok := r.db.Get(latestRetiredKey)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v), true
}

// PutSerializedKeys records session as registered and stores its key blob,
// within txn. Callers (sessionmanager) are responsible for the
// "NOP if session <= LatestRetiredSession" check before calling this.
func (r *Registry) PutSerializedKeys(txn Txn, session uint32, blob []byte) {
	txn.Put(sessionKey(serializedKeysDomain, session), blob)
	txn.Put(sessionKey(registeredKeysDomain, session), []byte{1})
}

// SerializedKeys returns the stored key blob for session, if any.
func (r *Registry) SerializedKeys(session uint32) ([]byte, bool) {
	return r.db.Get(sessionKey(serializedKeysDomain, session))
}

// RetireSession asserts session == LatestRetiredSession+1 (or 0 if unset),
// then advances LatestRetiredSession, removes the session's registration
// and key blob, and appends a ToCleanup entry, all within txn. If the
// ordering assertion fails it logs at Crit, which exits the process (a
// programmer-error invariant violation per spec.md §7); the returned error
// is always nil.
func (r *Registry) RetireSession(txn Txn, session uint32, externalKeyBytes []byte) error {
	last, has := r.LatestRetiredSession()
	expected := uint32(0)
	if has {
		expected = last + 1
	}
	if session != expected {
		log.Crit("retire_session called out of order", "session", session, "expected", expected)
	}

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], session)
	txn.Put(latestRetiredKey, b[:])
	txn.Delete(sessionKey(registeredKeysDomain, session))
	txn.Delete(sessionKey(serializedKeysDomain, session))
	r.appendToCleanup(txn, session, externalKeyBytes)
	return nil
}

// cleanupEntry is one (session, external key bytes) row awaiting boot
// cleanup.
type cleanupEntry struct {
	Session  uint32
	External []byte
}

func (r *Registry) appendToCleanup(txn Txn, session uint32, external []byte) {
	count := r.toCleanupCount()
	row := make([]byte, 0, 4+2+len(external))
	var se [4]byte
	binary.LittleEndian.PutUint32(se[:], session)
	row = append(row, se[:]...)
	var elen [2]byte
	binary.LittleEndian.PutUint16(elen[:], uint16(len(external)))
	row = append(row, elen[:]...)
	row = append(row, external...)
	txn.Put(key("ToCleanup.row", uint64Key(count)), row)
	txn.Put(toCleanupCountKey, uint64Key(count+1))
}

func (r *Registry) toCleanupCount() uint64 {
	v, ok := r.db.Get(toCleanupCountKey)
	if !ok {
		return 0
	}
	return uint64Val(v)
}

// ToCleanup lists every entry awaiting boot cleanup, oldest first.
func (r *Registry) ToCleanup() []cleanupEntry {
	n := r.toCleanupCount()
	out := make([]cleanupEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		v, ok := r.db.Get(key("ToCleanup.row", uint64Key(i)))
		if !ok {
			continue
		}
		session := binary.LittleEndian.Uint32(v[0:4])
		elen := binary.LittleEndian.Uint16(v[4:6])
		external := v[6 : 6+int(elen)]
		out = append(out, cleanupEntry{Session: session, External: external})
	}
	return out
}

// DeleteCleanupEntry removes the i-th ToCleanup row (indices match the
// order ToCleanup returns). Used once a session's channels are fully
// drained at boot.
func (r *Registry) DeleteCleanupEntry(txn Txn, i uint64) {
	txn.Delete(key("ToCleanup.row", uint64Key(i)))
}
