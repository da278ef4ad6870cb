package sessionmanager

import "errors"

// ErrMalformedKeyBlob is returned when a register_keys payload does not
// parse to an exact, length-prefixed sequence of (substrate_share,
// network_share) pairs.
var ErrMalformedKeyBlob = errors.New("sessionmanager: malformed key blob")

// KeyShare is one validator's serialized key material for one group: the
// substrate (FROST/Ristretto) share used by the cosigner and slash report
// signer, or the network (ciphersuite-specific) share used by the batch and
// transaction signers.
type KeyShare struct {
	Substrate []byte
	Network   []byte
}

// ParseKeyBlob parses the interleaved key-share wire format of SPEC_FULL.md
// §C.5: a repeating (len-prefixed substrate_share, len-prefixed
// network_share) sequence, one pair per co-signing group sharing this
// session's validator set. The blob is produced upstream by the key-gen
// pipeline (out of this core's scope) and consumed here opaquely — this
// core never inspects share contents, only hands them to the ciphersuite
// capability bundle at Machine-construction time.
func ParseKeyBlob(b []byte) ([]KeyShare, error) {
	var out []KeyShare
	for len(b) > 0 {
		s, rest, err := readLenPrefixed(b)
		if err != nil {
			return nil, err
		}
		n, rest2, err := readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyShare{Substrate: s, Network: n})
		b = rest2
	}
	return out, nil
}

func readLenPrefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, ErrMalformedKeyBlob
	}
	l := int(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	b = b[4:]
	if len(b) < l {
		return nil, nil, ErrMalformedKeyBlob
	}
	return b[:l], b[l:], nil
}

// EncodeKeyBlob is the inverse of ParseKeyBlob, used by tests and by
// whatever key-gen integration assembles a register_keys payload.
func EncodeKeyBlob(shares []KeyShare) []byte {
	var buf []byte
	for _, s := range shares {
		buf = append(buf, lenPrefixed(s.Substrate)...)
		buf = append(buf, lenPrefixed(s.Network)...)
	}
	return buf
}

func lenPrefixed(b []byte) []byte {
	l := uint32(len(b))
	out := []byte{byte(l), byte(l >> 8), byte(l >> 16), byte(l >> 24)}
	return append(out, b...)
}
