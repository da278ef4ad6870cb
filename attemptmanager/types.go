// Package attemptmanager drives one FROST preprocess/share round per
// active SignId, handling re-attempts and participant blame (spec.md
// §4.2). One instance exists per (validator, session); it multiplexes many
// concurrent signing protocols keyed by VariantSignId.
package attemptmanager

import (
	"errors"
	"sync"

	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// Participant identifies one member of the threshold set.
type Participant uint16

// Phase is the per-share machine's position in its lifecycle.
type Phase int

const (
	AwaitingPreprocesses Phase = iota
	AwaitingShares
	Done
	Blamed
)

// Machine is one local key share's state machine for one SignId. Multiple
// Machines may be registered for the same SignId when this validator holds
// more than one key share (fault-tolerant packing).
type Machine interface {
	// Preprocess returns this machine's own preprocess contribution to
	// broadcast for the current attempt.
	Preprocess() []byte
	// VerifyPreprocess validates a peer's preprocess bytes; a parse or
	// validation failure blames that participant.
	VerifyPreprocess(p Participant, preprocess []byte) error
	// Share computes this machine's share once every expected preprocess
	// has arrived.
	Share(preprocesses map[Participant][]byte) ([]byte, error)
	// VerifyShare validates a peer's share against their known preprocess;
	// failure blames that participant.
	VerifyShare(p Participant, share []byte) error
	// Aggregate combines every valid share into the final signature.
	Aggregate(shares map[Participant][]byte) ([]byte, error)
	// Threshold participants required for this protocol instance, chosen
	// deterministically (e.g. by SignId) at registration time.
	Threshold() []Participant
}

var (
	ErrUnknownSignId       = errors.New("attemptmanager: unknown sign id")
	ErrStaleAttempt        = errors.New("attemptmanager: message for a superseded attempt")
	ErrFutureAttempt       = errors.New("attemptmanager: message for an attempt not yet reached")
	ErrAlreadyBlamed       = errors.New("attemptmanager: sign id terminated by blame")
)

// ProcessorMessage is the subset of outbound messages the attempt manager
// itself produces (spec.md §6 "Outbound ProcessorMessage").
type ProcessorMessage struct {
	InvalidParticipant *InvalidParticipant
	Preprocesses       *PreprocessesOut
	Shares             *SharesOut
	Signature          *SignatureOut
}

type InvalidParticipant struct {
	Session     signid.Session
	Participant Participant
}

type PreprocessesOut struct {
	ID          signid.SignId
	Preprocesses [][]byte
}

type SharesOut struct {
	ID     signid.SignId
	Shares [][]byte
}

type SignatureOut struct {
	ID        signid.SignId
	Signature []byte
}

// state is the per-VariantSignId bookkeeping.
type state struct {
	session signid.Session
	variant signid.VariantSignId
	attempt uint32
	phase   Phase

	machines []Machine

	ourPreprocess  [][]byte // one per machine
	preprocesses   map[Participant][][]byte
	ourShare       [][]byte
	shares         map[Participant][][]byte
	blamed         map[Participant]bool

	// highestSeenAttempt records the highest attempt number seen on a
	// message ahead of `attempt`. Such messages are rejected, not held, and
	// this value is not consulted when handling later messages.
	highestSeenAttempt uint32
}

// Manager multiplexes many concurrent signing protocols by VariantSignId
// for one (validator, session) pair. Safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	states map[string]*state // keyed by variant.Encode()
}

func New() *Manager {
	return &Manager{states: make(map[string]*state)}
}

func variantKey(v signid.VariantSignId) string { return string(v.Encode()) }

func (m *Manager) logCtx(id signid.SignId) []interface{} {
	return []interface{}{"session", id.Session, "variant", id.ID, "attempt", id.Attempt}
}
