// Package signers implements the four near-identical signer task
// skeletons (spec.md §4.3): Cosigner, BatchSigner, TransactionSigner,
// SlashReportSigner. Each runs a cooperative loop over its intent channel
// and its coordinator-to-signer message channel, driving an
// attemptmanager.Manager and emitting artifacts on completion.
package signers

import (
	"context"

	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// Coordinator is the narrow outbound surface every task uses to talk back
// to the coordinator dispatch layer: broadcasting our own preprocess/share
// contributions and reporting blame. Named after, and with the same
// responsibility as, the Rust Coordinator trait in processor/signers.
type Coordinator interface {
	SendProcessorMessage(session signid.Session, msg attemptmanager.ProcessorMessage)
}

// Task is the shared cooperative-loop contract implemented by each of the
// four specializations. Run blocks until ctx is cancelled or the session
// retires; it is meant to be launched as one goroutine per session per
// task kind, supervised by an errgroup in sessionmanager.
type Task interface {
	Run(ctx context.Context) error
	// Retirement is not part of this interface: each task's IsRetired field
	// reports whether LatestRetiredSession has passed its session, and Run
	// checks it on every iteration to exit promptly (spec.md §5
	// "Cancellation").
}

// loopOnce drains at most one pending intent and one pending coordinator
// message, returning true if either channel had fresh work. Shared by all
// four task Run implementations to keep their cooperative-loop shape
// identical, per spec.md §4.3's canonical pseudocode.
func loopOnce(
	db durable.DB,
	intents *durable.Channel,
	handleIntent func(raw []byte) error,
	msgs *durable.Channel,
	handleMsg func(raw []byte) error,
) (didWork bool, err error) {
	if raw, id, ok := intents.TryRecv(); ok {
		if err := handleIntent(raw); err != nil {
			return true, err
		}
		txn := db.Txn()
		intents.Ack(txn, id)
		if err := txn.Commit(); err != nil {
			return true, err
		}
		didWork = true
	}
	if raw, id, ok := msgs.TryRecv(); ok {
		if err := handleMsg(raw); err != nil {
			return true, err
		}
		txn := db.Txn()
		msgs.Ack(txn, id)
		if err := txn.Commit(); err != nil {
			return true, err
		}
		didWork = true
	}
	return didWork, nil
}

func logTaskErr(kind string, session signid.Session, err error) {
	log.Error("signer task error", "kind", kind, "session", session, "err", err)
}
