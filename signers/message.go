package signers

import (
	"encoding/binary"
	"errors"

	"github.com/tos-network/gtos/attemptmanager"
)

// CoordinatorToSignerMessage is the Sign submodule of the inbound
// CoordinatorMessage union (spec.md §6): Preprocesses, Shares, or
// Reattempt. Exactly one field is set.
type CoordinatorToSignerMessage struct {
	Preprocesses map[attemptmanager.Participant][]byte
	Shares       map[attemptmanager.Participant][]byte
	Reattempt    bool
}

var ErrMalformedMessage = errors.New("signers: malformed coordinator message")

const (
	tagPreprocesses byte = 0
	tagShares       byte = 1
	tagReattempt    byte = 2
)

// EncodeCoordinatorToSignerMessage serializes a message for a durable
// channel: tag(1B) then, for Preprocesses/Shares, count(2B LE) repeated
// (participant(2B LE), len(4B LE), bytes).
func EncodeCoordinatorToSignerMessage(m CoordinatorToSignerMessage) []byte {
	switch {
	case m.Preprocesses != nil:
		return append([]byte{tagPreprocesses}, encodeParticipantMap(m.Preprocesses)...)
	case m.Shares != nil:
		return append([]byte{tagShares}, encodeParticipantMap(m.Shares)...)
	default:
		return []byte{tagReattempt}
	}
}

func encodeParticipantMap(m map[attemptmanager.Participant][]byte) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(len(m)))
	for p, v := range m {
		var ph [2]byte
		binary.LittleEndian.PutUint16(ph[:], uint16(p))
		buf = append(buf, ph[:]...)
		var lh [4]byte
		binary.LittleEndian.PutUint32(lh[:], uint32(len(v)))
		buf = append(buf, lh[:]...)
		buf = append(buf, v...)
	}
	return buf
}

func DecodeCoordinatorToSignerMessage(b []byte) (CoordinatorToSignerMessage, error) {
	if len(b) < 1 {
		return CoordinatorToSignerMessage{}, ErrMalformedMessage
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagReattempt:
		return CoordinatorToSignerMessage{Reattempt: true}, nil
	case tagPreprocesses, tagShares:
		m, err := decodeParticipantMap(rest)
		if err != nil {
			return CoordinatorToSignerMessage{}, err
		}
		if tag == tagPreprocesses {
			return CoordinatorToSignerMessage{Preprocesses: m}, nil
		}
		return CoordinatorToSignerMessage{Shares: m}, nil
	default:
		return CoordinatorToSignerMessage{}, ErrMalformedMessage
	}
}

func decodeParticipantMap(b []byte) (map[attemptmanager.Participant][]byte, error) {
	if len(b) < 2 {
		return nil, ErrMalformedMessage
	}
	count := binary.LittleEndian.Uint16(b[:2])
	b = b[2:]
	out := make(map[attemptmanager.Participant][]byte, count)
	for i := uint16(0); i < count; i++ {
		if len(b) < 6 {
			return nil, ErrMalformedMessage
		}
		p := attemptmanager.Participant(binary.LittleEndian.Uint16(b[:2]))
		l := binary.LittleEndian.Uint32(b[2:6])
		b = b[6:]
		if uint32(len(b)) < l {
			return nil, ErrMalformedMessage
		}
		out[p] = b[:l]
		b = b[l:]
	}
	if len(b) != 0 {
		return nil, ErrMalformedMessage
	}
	return out, nil
}
