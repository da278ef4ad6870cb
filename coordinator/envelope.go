package coordinator

import (
	"encoding/binary"
	"errors"

	"github.com/tos-network/gtos/common"
	"github.com/tos-network/gtos/signers"
)

// MaxReqResMessageSize bounds the P2P request-response frame (spec.md §4.5):
// approximately tributary block size times heartbeat batch, plus 1 KiB
// slack. This core does not own tributary block size, so it carries the
// donor's own maximum devp2p message size as the closest stand-in, which is
// already comfortably larger than a heartbeat batch of signed cosigns.
const MaxReqResMessageSize = 10 * 1024 * 1024

var (
	ErrFrameTooLarge   = errors.New("coordinator: frame exceeds size cap")
	ErrTrailingBytes   = errors.New("coordinator: frame has trailing bytes")
	ErrMalformedFrame  = errors.New("coordinator: malformed frame")
)

const (
	reqHeartbeat      byte = 0
	reqNotableCosigns byte = 1

	respNone            byte = 0
	respBlocks          byte = 1
	respNotableCosigns  byte = 2
)

// Request is the P2P request union (spec.md §6).
type Request struct {
	Heartbeat      bool
	NotableCosigns *[32]byte // global_session
}

// TributaryBlockWithCommit is opaque to this core: tributary consensus and
// block format are out of scope (spec.md §1 Non-goals), so Response.Blocks
// carries raw already-serialized bytes per block rather than a parsed type.
type TributaryBlockWithCommit = []byte

// Response is the P2P response union (spec.md §6).
type Response struct {
	Blocks         []TributaryBlockWithCommit
	NotableCosigns []signers.SignedCosign
}

// EncodeFrame serializes body with the 4-byte little-endian length prefix
// spec.md §4.5/§6 require, rejecting oversize bodies before they are ever
// framed.
func EncodeFrame(body []byte) ([]byte, error) {
	if len(body) > MaxReqResMessageSize {
		return nil, ErrFrameTooLarge
	}
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// DecodeFrame strips and validates the length prefix, rejecting frames
// that claim to exceed the cap or that carry trailing bytes beyond their
// declared length (spec.md §6: "reject framing larger than the
// per-protocol cap or with trailing bytes").
func DecodeFrame(framed []byte) (body []byte, err error) {
	if len(framed) < 4 {
		return nil, ErrMalformedFrame
	}
	l := binary.LittleEndian.Uint32(framed[:4])
	if l > MaxReqResMessageSize {
		return nil, ErrFrameTooLarge
	}
	rest := framed[4:]
	if uint32(len(rest)) != l {
		return nil, ErrTrailingBytes
	}
	return rest, nil
}

// EncodeRequest serializes a Request body (pre-framing): tag(1B) then
// variant payload.
func EncodeRequest(r Request) []byte {
	if r.NotableCosigns != nil {
		return append([]byte{reqNotableCosigns}, r.NotableCosigns[:]...)
	}
	return []byte{reqHeartbeat}
}

func DecodeRequest(b []byte) (Request, error) {
	if len(b) < 1 {
		return Request{}, ErrMalformedFrame
	}
	switch b[0] {
	case reqHeartbeat:
		if len(b) != 1 {
			return Request{}, ErrTrailingBytes
		}
		return Request{Heartbeat: true}, nil
	case reqNotableCosigns:
		if len(b) != 1+32 {
			return Request{}, ErrMalformedFrame
		}
		var gs [32]byte
		copy(gs[:], b[1:])
		return Request{NotableCosigns: &gs}, nil
	default:
		return Request{}, ErrMalformedFrame
	}
}

// EncodeResponse serializes a Response body (pre-framing).
func EncodeResponse(r Response) []byte {
	switch {
	case r.Blocks != nil:
		buf := []byte{respBlocks}
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(r.Blocks)))
		buf = append(buf, n[:]...)
		for _, blk := range r.Blocks {
			var l [4]byte
			binary.LittleEndian.PutUint32(l[:], uint32(len(blk)))
			buf = append(buf, l[:]...)
			buf = append(buf, blk...)
		}
		return buf
	case r.NotableCosigns != nil:
		buf := []byte{respNotableCosigns}
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(r.NotableCosigns)))
		buf = append(buf, n[:]...)
		for _, c := range r.NotableCosigns {
			buf = append(buf, encodeSignedCosignWire(c)...)
		}
		return buf
	default:
		return []byte{respNone}
	}
}

func DecodeResponse(b []byte) (Response, error) {
	if len(b) < 1 {
		return Response{}, ErrMalformedFrame
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case respNone:
		if len(rest) != 0 {
			return Response{}, ErrTrailingBytes
		}
		return Response{}, nil
	case respBlocks:
		if len(rest) < 4 {
			return Response{}, ErrMalformedFrame
		}
		count := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		blocks := make([]TributaryBlockWithCommit, 0, count)
		for i := uint32(0); i < count; i++ {
			if len(rest) < 4 {
				return Response{}, ErrMalformedFrame
			}
			l := binary.LittleEndian.Uint32(rest[:4])
			rest = rest[4:]
			if uint32(len(rest)) < l {
				return Response{}, ErrMalformedFrame
			}
			blocks = append(blocks, rest[:l])
			rest = rest[l:]
		}
		if len(rest) != 0 {
			return Response{}, ErrTrailingBytes
		}
		return Response{Blocks: blocks}, nil
	case respNotableCosigns:
		if len(rest) < 4 {
			return Response{}, ErrMalformedFrame
		}
		count := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		cosigns := make([]signers.SignedCosign, 0, count)
		for i := uint32(0); i < count; i++ {
			c, tail, err := decodeSignedCosignWire(rest)
			if err != nil {
				return Response{}, err
			}
			cosigns = append(cosigns, c)
			rest = tail
		}
		if len(rest) != 0 {
			return Response{}, ErrTrailingBytes
		}
		return Response{NotableCosigns: cosigns}, nil
	default:
		return Response{}, ErrMalformedFrame
	}
}

func encodeSignedCosignWire(c signers.SignedCosign) []byte {
	buf := make([]byte, 40+64)
	binary.LittleEndian.PutUint64(buf[:8], c.Cosign.BlockNumber)
	copy(buf[8:40], c.Cosign.BlockHash[:])
	copy(buf[40:], c.Signature[:])
	return buf
}

func decodeSignedCosignWire(b []byte) (signers.SignedCosign, []byte, error) {
	if len(b) < 40+64 {
		return signers.SignedCosign{}, nil, ErrMalformedFrame
	}
	var c signers.SignedCosign
	c.Cosign.BlockNumber = binary.LittleEndian.Uint64(b[:8])
	var blockHash common.Hash
	copy(blockHash[:], b[8:40])
	c.Cosign.BlockHash = blockHash
	copy(c.Signature[:], b[40:104])
	return c, b[104:], nil
}
