// Package durable implements the transactional key/value layer the signing
// core is built on: a generic KV engine wrapper and, on top of it, typed
// FIFO channels with an ack cursor (spec.md §4 "Durable Channels", §6
// "Durable on-disk layout"), plus the registered-keys/cleanup registry
// rows of §3 ("Registered-keys registry").
package durable

import (
	"encoding/binary"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
)

// DB is the minimal transactional KV contract every component in this core
// depends on, modeled on the donor's own storage layer (tosdb) and on the
// original Rust serai_db::Db/DbTxn traits.
type DB interface {
	Get(key []byte) ([]byte, bool)
	Txn() Txn
}

// Txn is a write batch that commits atomically.
type Txn interface {
	Put(key, value []byte)
	Delete(key []byte)
	Commit() error
}

// LevelDB adapts github.com/syndtr/goleveldb/leveldb to DB. Writes are
// buffered in a leveldb.Batch and applied with a single Write call, giving
// the "all multi-key operations are grouped in a single transaction"
// contract of spec.md §6 (leveldb has no multi-key read-your-writes
// transaction primitive, so reads inside a txn go directly to the
// underlying DB — every writer in this core reads before it starts
// constructing its txn, matching the donor's own read-then-batch-write
// idiom in validator/state.go).
type LevelDB struct {
	db *leveldb.DB
}

func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Close() error { return l.db.Close() }

func (l *LevelDB) Get(key []byte) ([]byte, bool) {
	v, err := l.db.Get(key, nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (l *LevelDB) Txn() Txn {
	return &levelTxn{db: l.db, batch: new(leveldb.Batch)}
}

type levelTxn struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (t *levelTxn) Put(key, value []byte) { t.batch.Put(key, value) }
func (t *levelTxn) Delete(key []byte)      { t.batch.Delete(key) }
func (t *levelTxn) Commit() error          { return t.db.Write(t.batch, nil) }

// key builds `domain || sub || encoded_index`, the layout spec.md §6 names
// for every durable key, mirroring the length-prefixed-domain style of the
// original Rust Queue::key and the Keccak-slot-naming convention of the
// donor's validator/accountsigner state packages (here there is no need for
// collision-resistant hashing since domains are already disjoint fixed
// strings, so plain concatenation with a length prefix suffices).
func key(domain string, sub ...[]byte) []byte {
	buf := make([]byte, 0, 1+len(domain)+32)
	buf = append(buf, byte(len(domain)))
	buf = append(buf, domain...)
	for _, s := range sub {
		buf = append(buf, s...)
	}
	return buf
}

func uint64Key(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func uint64Val(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

var ErrNotFound = errors.New("durable: key not found")
