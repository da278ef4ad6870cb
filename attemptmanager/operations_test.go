package attemptmanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/gtos/signid"
)

// fakeMachine is a trivial Machine, with a threshold set chosen by each
// test, used to exercise attemptmanager's generic state machine without any
// real cryptography.
type fakeMachine struct {
	threshold      []Participant
	badParticipant Participant // if nonzero, this participant's preprocess/share always fails verification
}

func (f *fakeMachine) Preprocess() []byte { return []byte("pp") }

func (f *fakeMachine) VerifyPreprocess(p Participant, preprocess []byte) error {
	if f.badParticipant != 0 && p == f.badParticipant {
		return errors.New("bad preprocess")
	}
	return nil
}

func (f *fakeMachine) Share(preprocesses map[Participant][]byte) ([]byte, error) {
	return []byte("share"), nil
}

func (f *fakeMachine) VerifyShare(p Participant, share []byte) error {
	if f.badParticipant != 0 && p == f.badParticipant {
		return errors.New("bad share")
	}
	return nil
}

func (f *fakeMachine) Aggregate(shares map[Participant][]byte) ([]byte, error) {
	return []byte("signature"), nil
}

func (f *fakeMachine) Threshold() []Participant { return f.threshold }

func TestHappyPathSignature(t *testing.T) {
	m := New()
	session := signid.Session(0)
	variant := signid.Cosign(10)
	machine := &fakeMachine{threshold: []Participant{1, 2}}

	pp := m.Register(session, variant, []Machine{machine})
	require.Len(t, pp, 1)

	id := signid.SignId{Session: session, ID: variant, Attempt: 0}
	shares, pm, err := m.HandlePreprocesses(id, map[Participant][]byte{1: {}, 2: {}})
	require.NoError(t, err)
	require.Nil(t, pm)
	require.NotNil(t, shares)

	sig, pm, err := m.HandleShares(id, map[Participant][]byte{1: {}, 2: {}})
	require.NoError(t, err)
	require.Nil(t, pm)
	require.Equal(t, []byte("signature"), sig)
}

// TestInvalidParticipantBlame: with threshold set {1, 2, 3}, the fake
// machine rejects participant 2's contributions, so blame is raised in the
// preprocess round. It yields exactly one InvalidParticipant and no
// signature until a Reattempt with threshold set {1, 3} excludes
// participant 2.
func TestInvalidParticipantBlame(t *testing.T) {
	m := New()
	session := signid.Session(0)
	variant := signid.Batch([32]byte{1})
	machine := &fakeMachine{threshold: []Participant{1, 2, 3}, badParticipant: 2}

	m.Register(session, variant, []Machine{machine})
	id := signid.SignId{Session: session, ID: variant, Attempt: 0}

	shares, pm, err := m.HandlePreprocesses(id, map[Participant][]byte{1: {}, 2: {}, 3: {}})
	require.NoError(t, err)
	require.Nil(t, shares)
	require.NotNil(t, pm)
	require.NotNil(t, pm.InvalidParticipant)
	require.Equal(t, Participant(2), pm.InvalidParticipant.Participant)

	// The sign id is now Blamed; further messages for attempt 0 are rejected.
	_, _, err = m.HandlePreprocesses(id, map[Participant][]byte{1: {}})
	require.ErrorIs(t, err, ErrAlreadyBlamed)

	// A Reattempt excluding participant 2 starts fresh, with participant 2
	// still permanently blamed.
	machine.threshold = []Participant{1, 3}
	reattemptID := signid.SignId{Session: session, ID: variant, Attempt: 1}
	pp := m.HandleReattempt(reattemptID)
	require.NotNil(t, pp)

	shares, pm, err = m.HandlePreprocesses(reattemptID, map[Participant][]byte{1: {}, 3: {}})
	require.NoError(t, err)
	require.Nil(t, pm)
	require.NotNil(t, shares)

	sig, pm, err := m.HandleShares(reattemptID, map[Participant][]byte{1: {}, 3: {}})
	require.NoError(t, err)
	require.Nil(t, pm)
	require.Equal(t, []byte("signature"), sig)
}

func TestStaleAndFutureAttempt(t *testing.T) {
	m := New()
	session := signid.Session(0)
	variant := signid.SlashReport()
	machine := &fakeMachine{threshold: []Participant{1, 2}}
	m.Register(session, variant, []Machine{machine})

	future := signid.SignId{Session: session, ID: variant, Attempt: 5}
	_, _, err := m.HandlePreprocesses(future, map[Participant][]byte{1: {}})
	require.ErrorIs(t, err, ErrFutureAttempt)

	m.HandleReattempt(signid.SignId{Session: session, ID: variant, Attempt: 1})
	stale := signid.SignId{Session: session, ID: variant, Attempt: 0}
	_, _, err = m.HandlePreprocesses(stale, map[Participant][]byte{1: {}})
	require.ErrorIs(t, err, ErrStaleAttempt)
}

func TestRegisterIsIdempotent(t *testing.T) {
	m := New()
	session := signid.Session(0)
	variant := signid.Transaction([32]byte{9})
	machine := &fakeMachine{threshold: []Participant{1}}

	pp1 := m.Register(session, variant, []Machine{machine})
	pp2 := m.Register(session, variant, []Machine{machine})
	require.Equal(t, pp1, pp2)
}
