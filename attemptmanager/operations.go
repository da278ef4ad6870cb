package attemptmanager

import (
	"github.com/tos-network/gtos/log"
	"github.com/tos-network/gtos/signid"
)

// Register initializes state for attempt 0 and returns our preprocess
// messages to broadcast. Re-registering an already-live SignId is a no-op
// that returns the existing attempt's preprocesses (register is not itself
// an attempt boundary).
func (m *Manager) Register(session signid.Session, variant signid.VariantSignId, machines []Machine) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := variantKey(variant)
	if st, ok := m.states[k]; ok {
		return st.ourPreprocess
	}

	st := &state{
		session:      session,
		variant:      variant,
		attempt:      0,
		phase:        AwaitingPreprocesses,
		machines:     machines,
		preprocesses: make(map[Participant][][]byte),
		shares:       make(map[Participant][][]byte),
		blamed:       make(map[Participant]bool),
	}
	st.ourPreprocess = make([][]byte, len(machines))
	for i, mach := range machines {
		st.ourPreprocess[i] = mach.Preprocess()
	}
	m.states[k] = st
	log.Debug("attempt manager: registered", "session", session, "variant", variant)
	return st.ourPreprocess
}

// Retire idempotently drops all state for variant.
func (m *Manager) Retire(variant signid.VariantSignId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, variantKey(variant))
}

func (m *Manager) lookup(id signid.SignId) (*state, error) {
	st, ok := m.states[variantKey(id.ID)]
	if !ok {
		return nil, ErrUnknownSignId
	}
	if id.Attempt < st.attempt {
		return nil, ErrStaleAttempt
	}
	if id.Attempt > st.attempt {
		// Messages for a later attempt are rejected with ErrFutureAttempt;
		// they are not stored or replayed once a Reattempt adopts that
		// attempt. Only the highest such attempt number is recorded.
		if id.Attempt > st.highestSeenAttempt {
			st.highestSeenAttempt = id.Attempt
		}
		return nil, ErrFutureAttempt
	}
	if st.phase == Blamed {
		return nil, ErrAlreadyBlamed
	}
	return st, nil
}

// HandlePreprocesses processes a batch of peer preprocess contributions.
// When every participant named by the machines' threshold set has
// contributed, it advances to the share phase and returns our share
// messages; otherwise it stores what arrived and returns nothing.
func (m *Manager) HandlePreprocesses(id signid.SignId, preprocesses map[Participant][]byte) ([][]byte, *ProcessorMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	if st.phase != AwaitingPreprocesses {
		return nil, nil, nil
	}

	for p, pp := range preprocesses {
		if st.blamed[p] {
			continue
		}
		for _, mach := range st.machines {
			if err := mach.VerifyPreprocess(p, pp); err != nil {
				st.blamed[p] = true
				st.phase = Blamed
				log.Warn("attempt manager: blaming participant (bad preprocess)", "session", st.session, "variant", st.variant, "participant", p, "err", err)
				return nil, &ProcessorMessage{InvalidParticipant: &InvalidParticipant{Session: st.session, Participant: p}}, nil
			}
		}
		if st.preprocesses[p] == nil {
			st.preprocesses[p] = make([][]byte, len(st.machines))
		}
		st.preprocesses[p][0] = pp
	}

	threshold := st.machines[0].Threshold()
	if !haveAll(st.preprocesses, threshold) {
		return nil, nil, nil
	}

	flat := make(map[Participant][]byte, len(st.preprocesses))
	for p, pp := range st.preprocesses {
		flat[p] = pp[0]
	}
	shares := make([][]byte, len(st.machines))
	for i, mach := range st.machines {
		s, err := mach.Share(flat)
		if err != nil {
			return nil, nil, err
		}
		shares[i] = s
	}
	st.ourShare = shares
	st.phase = AwaitingShares
	log.Debug("attempt manager: preprocesses complete, sharing", "session", st.session, "variant", st.variant)
	return shares, nil, nil
}

// HandleShares processes a batch of peer shares. When the threshold of
// valid shares is present, it aggregates and returns Response::Signature
// (here: a non-nil signature and nil ProcessorMessage). An invalid share
// blames its participant and terminates the attempt.
func (m *Manager) HandleShares(id signid.SignId, shares map[Participant][]byte) ([]byte, *ProcessorMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	if st.phase != AwaitingShares {
		return nil, nil, nil
	}

	for p, sh := range shares {
		if st.blamed[p] {
			continue
		}
		for _, mach := range st.machines {
			if err := mach.VerifyShare(p, sh); err != nil {
				st.blamed[p] = true
				st.phase = Blamed
				log.Warn("attempt manager: blaming participant (bad share)", "session", st.session, "variant", st.variant, "participant", p, "err", err)
				return nil, &ProcessorMessage{InvalidParticipant: &InvalidParticipant{Session: st.session, Participant: p}}, nil
			}
		}
		if st.shares[p] == nil {
			st.shares[p] = make([][]byte, len(st.machines))
		}
		st.shares[p][0] = sh
	}

	threshold := st.machines[0].Threshold()
	if !haveAll(st.shares, threshold) {
		return nil, nil, nil
	}

	flat := make(map[Participant][]byte, len(st.shares))
	for p, sh := range st.shares {
		flat[p] = sh[0]
	}
	sig, err := st.machines[0].Aggregate(flat)
	if err != nil {
		return nil, nil, err
	}
	st.phase = Done
	log.Info("attempt manager: signature produced", "session", st.session, "variant", st.variant)
	return sig, nil, nil
}

// HandleReattempt bumps the attempt, discards prior round state and
// produces fresh preprocesses. Re-attempts supersede prior attempts;
// signatures for superseded attempts that were already in flight are
// simply never looked at again since their state no longer exists.
func (m *Manager) HandleReattempt(id signid.SignId) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[variantKey(id.ID)]
	if !ok {
		return nil
	}
	if id.Attempt <= st.attempt {
		return nil
	}

	st.attempt = id.Attempt
	st.phase = AwaitingPreprocesses
	st.preprocesses = make(map[Participant][][]byte)
	st.shares = make(map[Participant][][]byte)
	// Blamed participants stay excluded permanently for this SignId — a
	// re-attempt does not rehabilitate them (spec.md §4.2 "Blame is fatal
	// at the protocol level").
	st.ourPreprocess = make([][]byte, len(st.machines))
	for i, mach := range st.machines {
		st.ourPreprocess[i] = mach.Preprocess()
	}
	log.Info("attempt manager: reattempt", "session", st.session, "variant", st.variant, "attempt", id.Attempt)
	return st.ourPreprocess
}

func haveAll(have map[Participant][][]byte, want []Participant) bool {
	for _, p := range want {
		if _, ok := have[p]; !ok {
			return false
		}
	}
	return true
}
