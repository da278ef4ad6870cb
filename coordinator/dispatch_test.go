package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/signers"
	"github.com/tos-network/gtos/signid"
)

type memDB struct{ data map[string][]byte }

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, bool) { v, ok := m.data[string(key)]; return v, ok }
func (m *memDB) Txn() durable.Txn {
	return &memTxn{db: m, puts: map[string][]byte{}, dels: map[string]bool{}}
}

type memTxn struct {
	db   *memDB
	puts map[string][]byte
	dels map[string]bool
}

func (t *memTxn) Put(key, value []byte) { t.puts[string(key)] = value }
func (t *memTxn) Delete(key []byte)     { t.dels[string(key)] = true }
func (t *memTxn) Commit() error {
	for k, v := range t.puts {
		t.db.data[k] = v
	}
	for k := range t.dels {
		delete(t.db.data, k)
	}
	return nil
}

type fakeSessionManager struct {
	registeredKeys  map[signid.Session][]byte
	cosigned        []signers.Cosign
	slashReports    []signid.Session
	queuedMessages  int
	knownSessions   map[signid.Session]bool
}

func newFakeSessionManager() *fakeSessionManager {
	return &fakeSessionManager{
		registeredKeys: make(map[signid.Session][]byte),
		knownSessions:  map[signid.Session]bool{1: true},
	}
}

func (f *fakeSessionManager) RegisterKeys(session signid.Session, keys []byte) error {
	f.registeredKeys[session] = keys
	return nil
}
func (f *fakeSessionManager) RetireSession(signid.Session, []byte) error { return nil }
func (f *fakeSessionManager) QueueMessage(signid.SignId, []byte) error {
	f.queuedMessages++
	return nil
}
func (f *fakeSessionManager) CosignBlock(session signid.Session, c signers.Cosign) error {
	f.cosigned = append(f.cosigned, c)
	return nil
}
func (f *fakeSessionManager) SignSlashReport(session signid.Session, report []signers.Slash) error {
	f.slashReports = append(f.slashReports, session)
	return nil
}

type fakeSink struct{ sent []ProcessorMessage }

func (s *fakeSink) Send(m ProcessorMessage) { s.sent = append(s.sent, m) }

func TestDispatchSetKeysRegisters(t *testing.T) {
	sm := newFakeSessionManager()
	d := NewDispatcher(newMemDB(), sm, &fakeSink{})

	var kp KeyPair
	kp.SubstrateKey = [32]byte{1}
	kp.NetworkKey = []byte("net")
	err := d.Handle(CoordinatorMessage{SetKeys: &SetKeys{Session: 5, KeyPair: kp}})
	require.NoError(t, err)
	require.Contains(t, sm.registeredKeys, signid.Session(5))
}

func TestDispatchDropsDuplicateIntent(t *testing.T) {
	sm := newFakeSessionManager()
	d := NewDispatcher(newMemDB(), sm, &fakeSink{})

	msg := CoordinatorMessage{CosignSubstrateBlock: &CosignSubstrateBlock{Session: 1, BlockNumber: 7}}
	require.NoError(t, d.Handle(msg))
	require.NoError(t, d.Handle(msg))
	require.Len(t, sm.cosigned, 1, "a duplicate intent must not be actioned twice")
}

func TestDispatchRoutesPreprocesses(t *testing.T) {
	sm := newFakeSessionManager()
	d := NewDispatcher(newMemDB(), sm, &fakeSink{})

	id := signid.SignId{Session: 1, ID: signid.Cosign(1)}
	err := d.Handle(CoordinatorMessage{Preprocesses: &Preprocesses{ID: id, Preprocesses: map[uint16][]byte{1: {}}}})
	require.NoError(t, err)
	require.Equal(t, 1, sm.queuedMessages)
}

func TestDispatchSignSlashReport(t *testing.T) {
	sm := newFakeSessionManager()
	d := NewDispatcher(newMemDB(), sm, &fakeSink{})

	err := d.Handle(CoordinatorMessage{SignSlashReport: &SignSlashReportMsg{Session: 1}})
	require.NoError(t, err)
	require.Equal(t, []signid.Session{1}, sm.slashReports)
}
