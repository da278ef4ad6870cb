package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/gtos/common"
	"github.com/tos-network/gtos/signid"
)

func TestCosignIntentIgnoresBlockHash(t *testing.T) {
	a := CoordinatorMessage{CosignSubstrateBlock: &CosignSubstrateBlock{
		Session: 1, BlockNumber: 10, Block: common.BytesToHash([]byte("hash-a")),
	}}
	b := CoordinatorMessage{CosignSubstrateBlock: &CosignSubstrateBlock{
		Session: 1, BlockNumber: 10, Block: common.BytesToHash([]byte("hash-b")),
	}}
	ia, err := a.Intent()
	require.NoError(t, err)
	ib, err := b.Intent()
	require.NoError(t, err)
	require.Equal(t, ia, ib, "two cosign requests for the same height are one logical action")
}

func TestSignSlashReportIntentIsSessionScoped(t *testing.T) {
	a := CoordinatorMessage{SignSlashReport: &SignSlashReportMsg{Session: 2, Report: nil}}
	b := CoordinatorMessage{SignSlashReport: &SignSlashReportMsg{Session: 2, Report: nil}}
	ia, _ := a.Intent()
	ib, _ := b.Intent()
	require.Equal(t, ia, ib)

	c := CoordinatorMessage{SignSlashReport: &SignSlashReportMsg{Session: 3, Report: nil}}
	ic, _ := c.Intent()
	require.NotEqual(t, ia, ic)
}

func TestPreprocessesIntentUsesFullSignId(t *testing.T) {
	id1 := signid.SignId{Session: 1, ID: signid.Batch(common.BytesToHash([]byte("b1"))), Attempt: 0}
	id2 := signid.SignId{Session: 1, ID: signid.Batch(common.BytesToHash([]byte("b1"))), Attempt: 1}
	m1 := CoordinatorMessage{Preprocesses: &Preprocesses{ID: id1}}
	m2 := CoordinatorMessage{Preprocesses: &Preprocesses{ID: id2}}
	i1, _ := m1.Intent()
	i2, _ := m2.Intent()
	require.NotEqual(t, i1, i2, "different attempts are distinct intents")
}
