package rewardTypes

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func Test_RewardEvent(t *testing.T) {
	t.Run("Key should treat equal amounts with different scale as equal", func(t *testing.T) {
		a := NewWithdrawalEvent(10, decimal.RequireFromString("17000"), 300, nil, false)
		b := NewWithdrawalEvent(10, decimal.New(17, 3), 300, nil, false)
		assert.Equal(t, a.Key(), b.Key())
		assert.Equal(t, "300/10/withdrawal/17000", a.Key().String())
	})
	t.Run("Key should differ by kind", func(t *testing.T) {
		w := NewWithdrawalEvent(10, decimal.NewFromInt(5), 300, nil, false)
		p := NewProposalEvent(10, decimal.NewFromInt(5), 300, nil, ProposalDetail{})
		assert.NotEqual(t, w.Key(), p.Key())
	})
	t.Run("Only withdrawals can be exits", func(t *testing.T) {
		assert.True(t, NewWithdrawalEvent(1, decimal.NewFromInt(32_000_000_000), 1, nil, true).IsExit())
		assert.False(t, NewWithdrawalEvent(1, decimal.NewFromInt(1), 1, nil, false).IsExit())
		assert.False(t, NewProposalEvent(1, decimal.NewFromInt(1), 1, nil, ProposalDetail{MevSource: "flashbots"}).IsExit())
	})
	t.Run("Should parse kinds", func(t *testing.T) {
		k, err := ParseKind("proposal")
		assert.Nil(t, err)
		assert.Equal(t, Kind_Proposal, k)

		_, err = ParseKind("exit")
		assert.NotNil(t, err)
	})
	t.Run("Should copy validator metadata", func(t *testing.T) {
		e := NewProposalEvent(7, decimal.NewFromInt(1), 2, nil, ProposalDetail{MevSource: "ultrasound"}).
			WithValidator("8", "node-a", "0xpool")
		assert.Equal(t, "8", e.BondType)
		assert.Equal(t, "node-a", e.Node)
		assert.Equal(t, "0xpool", e.PoolId)
		assert.Equal(t, "ultrasound", e.MevSource())
	})
}
