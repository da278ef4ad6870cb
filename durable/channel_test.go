package durable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelFIFO(t *testing.T) {
	db := newMemDB()
	ch := NewChannel(db, "Test", []byte("scope"))

	txn := db.Txn()
	ch.Send(txn, []byte("a"))
	ch.Send(txn, []byte("b"))
	ch.Send(txn, []byte("c"))
	require.NoError(t, txn.Commit())

	msg, id, ok := ch.TryRecv()
	require.True(t, ok)
	require.Equal(t, []byte("a"), msg)
	require.Equal(t, uint64(0), id)

	txn = db.Txn()
	ch.Ack(txn, id)
	require.NoError(t, txn.Commit())

	msg, id, ok = ch.TryRecv()
	require.True(t, ok)
	require.Equal(t, []byte("b"), msg)
	require.Equal(t, uint64(1), id)
}

func TestChannelEmptyTryRecv(t *testing.T) {
	db := newMemDB()
	ch := NewChannel(db, "Empty", nil)
	_, _, ok := ch.TryRecv()
	require.False(t, ok)
}

func TestChannelDrain(t *testing.T) {
	db := newMemDB()
	ch := NewChannel(db, "Drainable", nil)

	txn := db.Txn()
	ch.Send(txn, []byte("x"))
	ch.Send(txn, []byte("y"))
	require.NoError(t, txn.Commit())

	txn = db.Txn()
	ch.Drain(txn)
	require.NoError(t, txn.Commit())

	_, _, ok := ch.TryRecv()
	require.False(t, ok, "a drained channel must report no pending messages")

	// And a fresh Send after Drain must start a clean count, not resume
	// from the old cursor.
	txn = db.Txn()
	ch.Send(txn, []byte("z"))
	require.NoError(t, txn.Commit())
	msg, id, ok := ch.TryRecv()
	require.True(t, ok)
	require.Equal(t, []byte("z"), msg)
	require.Equal(t, uint64(0), id)
}

func TestRegistryRetireSessionOrdering(t *testing.T) {
	db := newMemDB()
	r := NewRegistry(db)

	txn := db.Txn()
	require.NoError(t, r.RetireSession(txn, 0, []byte("ext0")))
	require.NoError(t, txn.Commit())

	last, has := r.LatestRetiredSession()
	require.True(t, has)
	require.Equal(t, uint32(0), last)

	entries := r.ToCleanup()
	require.Len(t, entries, 1)
	require.Equal(t, uint32(0), entries[0].Session)
	require.Equal(t, []byte("ext0"), entries[0].External)
}

func TestRegistryPutAndIsRegistered(t *testing.T) {
	db := newMemDB()
	r := NewRegistry(db)

	require.False(t, r.IsRegistered(3))
	txn := db.Txn()
	r.PutSerializedKeys(txn, 3, []byte("blob"))
	require.NoError(t, txn.Commit())
	require.True(t, r.IsRegistered(3))

	blob, ok := r.SerializedKeys(3)
	require.True(t, ok)
	require.Equal(t, []byte("blob"), blob)
}
