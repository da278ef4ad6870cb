package durable

// Channel is a typed, transactional FIFO: an ordered, at-least-once append
// log with in-order TryRecv; the receiver commits a transaction to advance
// its cursor (spec.md §4 "Durable Channels", §8 invariant 6 "Channel
// FIFO"). Grounded directly on the original Rust message-queue Queue type:
// message_count/last_acknowledged cursor pair, single-txn append.
//
// name is the channel's domain (e.g. "ToCosign", "Cosign",
// "CoordinatorToCosignerMessages") and scope further qualifies it by
// session (and, where named in spec.md §4, by sign id) so that two
// sessions' channels never collide in the keyspace.
type Channel struct {
	db    DB
	name  string
	scope []byte

	// lastTxn/lastCount remember the count staged by the latest Send, so
	// further Sends in that same uncommitted txn take the following ids.
	lastTxn   Txn
	lastCount uint64
}

func NewChannel(db DB, name string, scope []byte) *Channel {
	return &Channel{db: db, name: name, scope: scope}
}

func (c *Channel) countKey() []byte   { return key(c.name+".count", c.scope) }
func (c *Channel) ackKey() []byte     { return key(c.name+".ack", c.scope) }
func (c *Channel) messageKey(id uint64) []byte {
	return key(c.name+".msg", c.scope, uint64Key(id))
}

// count returns the number of messages ever appended (the next id to use).
func (c *Channel) count() uint64 {
	v, ok := c.db.Get(c.countKey())
	if !ok {
		return 0
	}
	return uint64Val(v)
}

// lastAcknowledged returns the highest acknowledged id, or (0, false) if
// nothing has ever been acknowledged.
func (c *Channel) lastAcknowledged() (uint64, bool) {
	v, ok := c.db.Get(c.ackKey())
	if !ok {
		return 0, false
	}
	return uint64Val(v), true
}

// Send appends msg to the channel and advances its count, within txn.
// Multiple Sends through the same Channel in the same txn take consecutive
// ids and are visible to a TryRecv only after Commit.
func (c *Channel) Send(txn Txn, msg []byte) {
	id := c.count()
	if c.lastTxn == txn && c.lastCount > id {
		id = c.lastCount
	}
	txn.Put(c.messageKey(id), msg)
	txn.Put(c.countKey(), uint64Key(id+1))
	c.lastTxn, c.lastCount = txn, id+1
}

// TryRecv returns the next unacknowledged message, in send order, or
// (nil, false) if the channel is caught up. It does not advance the
// cursor — call Ack with the same id (via the returned index) once the
// message has been durably handled.
func (c *Channel) TryRecv() (msg []byte, id uint64, ok bool) {
	next := uint64(0)
	if last, has := c.lastAcknowledged(); has {
		next = last + 1
	}
	if next >= c.count() {
		return nil, 0, false
	}
	v, found := c.db.Get(c.messageKey(next))
	if !found {
		return nil, 0, false
	}
	return v, next, true
}

// Ack commits the cursor forward to id, within txn. Acking out of order is
// a caller bug (TryRecv never returns an out-of-order id), so Ack trusts
// its argument.
func (c *Channel) Ack(txn Txn, id uint64) {
	txn.Put(c.ackKey(), uint64Key(id))
}

// Drain removes every message up to the current count and resets the ack
// cursor, used by session retirement cleanup (spec.md §4.4 "Boot cleanup"):
// draining frees disk without needing to process the messages.
func (c *Channel) Drain(txn Txn) {
	total := c.count()
	for id := uint64(0); id < total; id++ {
		txn.Delete(c.messageKey(id))
	}
	txn.Delete(c.countKey())
	txn.Delete(c.ackKey())
}
