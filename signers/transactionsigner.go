package signers

import (
	"context"
	"time"

	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/common"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// TransactionPublisher accepts a finished network transaction. publish may
// be called repeatedly and idempotently; duplicates and mempool-present
// conditions are NOT errors (spec.md §4.3.3).
type TransactionPublisher interface {
	Publish(ctx context.Context, tx []byte) error
}

// TransactionSignerTask implements spec.md §4.3.3. Drives a coin-specific
// threshold signing (CLSAG for Monero, Schnorr/ECDSA for others, via the
// ciphersuite capability bundle — spec.md §9 "Polymorphism over
// ciphersuites"). Retires when CompletedEventualities acknowledges the
// corresponding on-chain confirmation.
type TransactionSignerTask struct {
	Session      signid.Session
	DB           durable.DB
	ToSign       *durable.Channel // intent: encoded tx-to-sign descriptor
	Completed    *durable.Channel // CompletedEventualities: encoded tx id
	Messages     *durable.Channel
	Machines     MachineFactory
	Manager      *attemptmanager.Manager
	Coordinator  Coordinator
	Publisher    TransactionPublisher
	IsRetired    func() bool

	inFlight  map[common.Hash][]byte // tx id -> unsigned tx descriptor
	published map[common.Hash][]byte // tx id -> finished network tx, retried on every tick until completed
}

func (t *TransactionSignerTask) handleIntent(raw []byte) error {
	if len(raw) < 32 {
		return ErrMalformedMessage
	}
	var txID common.Hash
	copy(txID[:], raw[:32])
	descriptor := raw[32:]

	if t.inFlight == nil {
		t.inFlight = make(map[common.Hash][]byte)
	}
	if _, ok := t.inFlight[txID]; ok {
		return nil
	}
	t.inFlight[txID] = descriptor

	variant := signid.Transaction(txID)
	id := signid.SignId{Session: t.Session, ID: variant, Attempt: 0}
	machines := t.Machines(variant)
	preprocesses := t.Manager.Register(t.Session, variant, machines)
	t.Coordinator.SendProcessorMessage(t.Session, attemptmanager.ProcessorMessage{
		Preprocesses: &attemptmanager.PreprocessesOut{ID: id, Preprocesses: preprocesses},
	})
	return nil
}

func (t *TransactionSignerTask) handleCompleted(raw []byte) error {
	if len(raw) < 32 {
		return ErrMalformedMessage
	}
	var txID common.Hash
	copy(txID[:], raw[:32])
	t.Manager.Retire(signid.Transaction(txID))
	delete(t.inFlight, txID)
	delete(t.published, txID)
	log.Debug("transaction signer: retiring confirmed tx", "session", t.Session, "tx", txID)
	return nil
}

func (t *TransactionSignerTask) handleMessage(raw []byte) error {
	msg, err := DecodeCoordinatorToSignerMessage(raw)
	if err != nil {
		return err
	}
	for txID := range t.inFlight {
		variant := signid.Transaction(txID)
		id := signid.SignId{Session: t.Session, ID: variant, Attempt: 0}
		switch {
		case msg.Preprocesses != nil:
			shares, pm, err := t.Manager.HandlePreprocesses(id, msg.Preprocesses)
			if err != nil {
				return err
			}
			if pm != nil {
				t.Coordinator.SendProcessorMessage(t.Session, *pm)
				continue
			}
			if shares != nil {
				t.Coordinator.SendProcessorMessage(t.Session, attemptmanager.ProcessorMessage{
					Shares: &attemptmanager.SharesOut{ID: id, Shares: shares},
				})
			}
		case msg.Shares != nil:
			sig, pm, err := t.Manager.HandleShares(id, msg.Shares)
			if err != nil {
				return err
			}
			if pm != nil {
				t.Coordinator.SendProcessorMessage(t.Session, *pm)
				continue
			}
			if sig != nil {
				if t.published == nil {
					t.published = make(map[common.Hash][]byte)
				}
				t.published[txID] = sig
			}
		}
	}
	return nil
}

// republish retries Publish for every finished-but-unconfirmed transaction.
// Publication is explicitly safe to retry indefinitely (spec.md §4.3.3),
// so failures here are logged, not propagated.
func (t *TransactionSignerTask) republish(ctx context.Context) {
	for txID, tx := range t.published {
		if err := t.Publisher.Publish(ctx, tx); err != nil {
			log.Warn("transaction signer: publish retry failed", "session", t.Session, "tx", txID, "err", err)
		}
	}
}

func (t *TransactionSignerTask) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if t.IsRetired != nil && t.IsRetired() {
			return nil
		}
		did, err := loopOnce(t.DB, t.ToSign, t.handleIntent, t.Messages, t.handleMessage)
		if err != nil {
			logTaskErr("transaction", t.Session, err)
			return err
		}
		did2, err := loopOnce(t.DB, t.Completed, t.handleCompleted, t.Messages, t.handleMessage)
		if err != nil {
			logTaskErr("transaction", t.Session, err)
			return err
		}
		t.republish(ctx)
		if !did && !did2 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
}
