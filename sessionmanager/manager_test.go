package sessionmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/signers"
	"github.com/tos-network/gtos/signid"
)

// memDB mirrors durable's own in-memory test double, duplicated locally
// since durable's is package-private to its _test.go file.
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

type noopCoordinator struct{}

func (noopCoordinator) SendProcessorMessage(signid.Session, attemptmanager.ProcessorMessage) {}

type noopPublishers struct{}

func (noopPublishers) PublishSignedBatch(signers.Batch, []byte)                     {}
func (noopPublishers) Publish(context.Context, []byte) error                        { return nil }
func (noopPublishers) PublishSlashReport(signid.Session, []signers.Slash, []byte)    {}

func noMachines(signid.VariantSignId) []attemptmanager.Machine { return nil }

func newTestManager() *Manager {
	db := newMemDB()
	pubs := noopPublishers{}
	return New(db, noMachines, noopCoordinator{}, pubs, pubs, pubs)
}

func TestRegisterKeysThenRetireIsNopAfterward(t *testing.T) {
	m := newTestManager()

	blob := EncodeKeyBlob([]KeyShare{{Substrate: []byte("s"), Network: []byte("n")}})
	require.NoError(t, m.RegisterKeys(signid.Session(0), blob))
	require.True(t, m.registry.IsRegistered(0))

	require.NoError(t, m.RetireSession(signid.Session(0), []byte("ext")))
	require.False(t, m.registry.IsRegistered(0))

	// Re-registering a retired session is a NOP, not an error.
	require.NoError(t, m.RegisterKeys(signid.Session(0), blob))
	require.False(t, m.registry.IsRegistered(0), "register_keys after retire must stay a no-op")
}

func TestQueueMessageUnknownSession(t *testing.T) {
	m := newTestManager()
	id := signid.SignId{Session: signid.Session(99), ID: signid.Cosign(1)}
	err := m.QueueMessage(id, []byte("x"))
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestBootRespawnsRegisteredSessions(t *testing.T) {
	m := newTestManager()
	blob := EncodeKeyBlob([]KeyShare{{Substrate: []byte("s"), Network: []byte("n")}})
	require.NoError(t, m.RegisterKeys(signid.Session(0), blob))

	fresh := newTestManager()
	fresh.db = m.db // share the same durable state the first manager wrote
	fresh.registry = durable.NewRegistry(fresh.db)
	fresh.Boot()
	require.Contains(t, fresh.sessions, signid.Session(0))
}
