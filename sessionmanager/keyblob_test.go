package sessionmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyBlobRoundTrip(t *testing.T) {
	shares := []KeyShare{
		{Substrate: []byte("sub-a"), Network: []byte("net-a")},
		{Substrate: []byte("sub-b"), Network: []byte{}},
	}
	blob := EncodeKeyBlob(shares)
	parsed, err := ParseKeyBlob(blob)
	require.NoError(t, err)
	require.Equal(t, shares, parsed)
}

func TestParseKeyBlobRejectsTruncated(t *testing.T) {
	_, err := ParseKeyBlob([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedKeyBlob)
}

func TestParseKeyBlobEmpty(t *testing.T) {
	parsed, err := ParseKeyBlob(nil)
	require.NoError(t, err)
	require.Empty(t, parsed)
}
