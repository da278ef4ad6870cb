package durable

// memDB is an in-memory DB for tests, avoiding a real leveldb file per test
// case while exercising the exact same Get/Txn/Put/Delete/Commit contract
// LevelDB implements.
type memDB struct {
	data map[string][]byte
}

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, bool) {
	v, ok := m.data[string(key)]
	return v, ok
}

func (m *memDB) Txn() Txn { return &memTxn{db: m, puts: map[string][]byte{}, dels: map[string]bool{}} }

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
