package signid

// Origin distinguishes which side of the coordinator/processor boundary a
// message originated from.
type Origin byte

const (
	OriginCoordinator Origin = 0
	OriginProcessor   Origin = 1
)

// MsgType is the top-level message family, matching the four submodules of
// the original message taxonomy (key_gen / sign / coordinator / substrate).
type MsgType byte

const (
	MsgTypeKeyGen      MsgType = 0
	MsgTypeSign        MsgType = 1
	MsgTypeCoordinator MsgType = 2
	MsgTypeSubstrate   MsgType = 3
)

// BuildIntent encodes the stable, cross-protocol dedup identity of a
// message: origin_uid(1B) || type_uid(1B) || sub_uid(1B) || body. Two
// messages with equal intents are duplicates and MUST be treated as the
// same logical action regardless of any other field they carry.
//
// body must include exactly the fields the variant's non-duplication rule
// calls for — e.g. a CosignSubstrateBlock intent's body is session and
// block_number, deliberately excluding the block hash, so that two cosign requests
// for the same height are one action (spec invariant: cosign-per-block).
func BuildIntent(origin Origin, typ MsgType, sub byte, body []byte) []byte {
	buf := make([]byte, 0, 3+len(body))
	buf = append(buf, byte(origin), byte(typ), sub)
	buf = append(buf, body...)
	return buf
}
