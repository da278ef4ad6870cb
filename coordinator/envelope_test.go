package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/gtos/signers"
)

func TestFrameRoundTrip(t *testing.T) {
	body := EncodeRequest(Request{Heartbeat: true})
	framed, err := EncodeFrame(body)
	require.NoError(t, err)

	decoded, err := DecodeFrame(framed)
	require.NoError(t, err)
	require.Equal(t, body, decoded)
}

func TestFrameRejectsOversize(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxReqResMessageSize+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeFrameRejectsTrailingBytes(t *testing.T) {
	framed, err := EncodeFrame([]byte("abc"))
	require.NoError(t, err)
	framed = append(framed, 0xFF)
	_, err = DecodeFrame(framed)
	require.ErrorIs(t, err, ErrTrailingBytes)
}

func TestRequestRoundTrip(t *testing.T) {
	gs := [32]byte{1, 2, 3}
	r := Request{NotableCosigns: &gs}
	decoded, err := DecodeRequest(EncodeRequest(r))
	require.NoError(t, err)
	require.Equal(t, gs, *decoded.NotableCosigns)

	decoded, err = DecodeRequest(EncodeRequest(Request{Heartbeat: true}))
	require.NoError(t, err)
	require.True(t, decoded.Heartbeat)
}

func TestResponseNotableCosignsRoundTrip(t *testing.T) {
	resp := Response{NotableCosigns: []signers.SignedCosign{
		{Cosign: signers.Cosign{BlockNumber: 42}, Signature: [64]byte{9}},
	}}
	decoded, err := DecodeResponse(EncodeResponse(resp))
	require.NoError(t, err)
	require.Len(t, decoded.NotableCosigns, 1)
	require.Equal(t, uint64(42), decoded.NotableCosigns[0].Cosign.BlockNumber)
}

func TestResponseNoneRoundTrip(t *testing.T) {
	decoded, err := DecodeResponse(EncodeResponse(Response{}))
	require.NoError(t, err)
	require.Nil(t, decoded.Blocks)
	require.Nil(t, decoded.NotableCosigns)
}
