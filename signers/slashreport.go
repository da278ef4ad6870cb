package signers

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/tos-network/gtos/attemptmanager"
	"github.com/tos-network/gtos/durable"
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// Slash is one validator's slash record within a session's report.
type Slash struct {
	Validator [20]byte
	Amount    uint64
}

// SlashReportPublisher enqueues the finished report to the substrate tx
// sink (spec.md §4.3.4).
type SlashReportPublisher interface {
	PublishSlashReport(session signid.Session, report []Slash, signature []byte)
}

// SlashReportSignerTask implements spec.md §4.3.4: exactly-once per
// session.
type SlashReportSignerTask struct {
	Session     signid.Session
	DB          durable.DB
	Intent      *durable.Channel // SlashReport[session]: encoded []Slash, sent at most once
	Messages    *durable.Channel
	Machines    MachineFactory
	Manager     *attemptmanager.Manager
	Coordinator Coordinator
	Publisher   SlashReportPublisher
	IsRetired   func() bool

	report  []Slash
	started bool
	done    bool
}

func encodeSlashReport(report []Slash) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(report)))
	for _, s := range report {
		buf = append(buf, s.Validator[:]...)
		var a [8]byte
		binary.LittleEndian.PutUint64(a[:], s.Amount)
		buf = append(buf, a[:]...)
	}
	return buf
}

func decodeSlashReport(b []byte) ([]Slash, error) {
	if len(b) < 4 {
		return nil, ErrMalformedMessage
	}
	count := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	out := make([]Slash, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < 28 {
			return nil, ErrMalformedMessage
		}
		var s Slash
		copy(s.Validator[:], b[:20])
		s.Amount = binary.LittleEndian.Uint64(b[20:28])
		out = append(out, s)
		b = b[28:]
	}
	if len(b) != 0 {
		return nil, ErrMalformedMessage
	}
	return out, nil
}

func (t *SlashReportSignerTask) handleIntent(raw []byte) error {
	if t.started {
		// Exactly-once per session: a duplicate SignSlashReport call is a
		// no-op, matching the at-most-once completion invariant (spec.md
		// §8 invariant 9), not an error — the caller may legitimately retry
		// at a higher level.
		return nil
	}
	report, err := decodeSlashReport(raw)
	if err != nil {
		return err
	}
	t.report = report
	t.started = true

	variant := signid.SlashReport()
	id := signid.SignId{Session: t.Session, ID: variant, Attempt: 0}
	machines := t.Machines(variant)
	preprocesses := t.Manager.Register(t.Session, variant, machines)
	t.Coordinator.SendProcessorMessage(t.Session, attemptmanager.ProcessorMessage{
		Preprocesses: &attemptmanager.PreprocessesOut{ID: id, Preprocesses: preprocesses},
	})
	return nil
}

func (t *SlashReportSignerTask) handleMessage(raw []byte) error {
	if !t.started || t.done {
		return nil
	}
	msg, err := DecodeCoordinatorToSignerMessage(raw)
	if err != nil {
		return err
	}
	variant := signid.SlashReport()
	id := signid.SignId{Session: t.Session, ID: variant, Attempt: 0}
	switch {
	case msg.Preprocesses != nil:
		shares, pm, err := t.Manager.HandlePreprocesses(id, msg.Preprocesses)
		if err != nil {
			return err
		}
		if pm != nil {
			t.Coordinator.SendProcessorMessage(t.Session, *pm)
			return nil
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
			return nil
		}
		if sig != nil {
			t.Publisher.PublishSlashReport(t.Session, t.report, sig)
			t.done = true
			log.Info("slash report signer: completed", "session", t.Session)
		}
	}
	return nil
}

func (t *SlashReportSignerTask) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if t.IsRetired != nil && t.IsRetired() {
			return nil
		}
		did, err := loopOnce(t.DB, t.Intent, t.handleIntent, t.Messages, t.handleMessage)
		if err != nil {
			logTaskErr("slashreport", t.Session, err)
			return err
		}
		if !did {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}
