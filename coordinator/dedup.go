package coordinator

import "github.com/tos-network/gtos/durable"

// seenIntentKey namespaces intent bytes within the shared KV keyspace; kept
// local to this package since intents are never looked up by anything else.
func seenIntentKey(intent []byte) []byte {
	buf := make([]byte, 0, 12+len(intent))
	buf = append(buf, []byte("SeenIntents:")...)
	buf = append(buf, intent...)
	return buf
}

// seen reports whether intent has already been handled and, if not,
// stages the seen mark in txn. Commit txn only after the message's side
// effects have been applied, so a failure or crash before that point
// leaves the intent unmarked and the message is handled again when it is
// redelivered instead of being lost (spec.md §4.5 "MUST be deduplicated").
func seen(db durable.DB, txn durable.Txn, intent []byte) bool {
	k := seenIntentKey(intent)
	if _, ok := db.Get(k); ok {
		return true
	}
	txn.Put(k, []byte{1})
	return false
}
