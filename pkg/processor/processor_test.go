package processor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/li-blockchain/rewards-collector/pkg/clients/beaconchain"
	"github.com/li-blockchain/rewards-collector/pkg/registry"
	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeBlockSource struct {
	blocks     map[uint64]*beaconchain.ExecutionBlockResponse
	blockErrs  map[uint64]error
	slots      *beaconchain.EpochSlotsResponse
	slotsErr   error
	slotsCalls int
}

func (f *fakeBlockSource) GetExecutionBlock(ctx context.Context, blockNumber uint64) (*beaconchain.ExecutionBlockResponse, error) {
	if err, ok := f.blockErrs[blockNumber]; ok {
		return nil, err
	}
	if b, ok := f.blocks[blockNumber]; ok {
		return b, nil
	}
	return &beaconchain.ExecutionBlockResponse{Status: "OK"}, nil
}

func (f *fakeBlockSource) GetEpochSlots(ctx context.Context, epoch uint64) (*beaconchain.EpochSlotsResponse, error) {
	f.slotsCalls++
	if f.slotsErr != nil {
		return nil, f.slotsErr
	}
	return f.slots, nil
}

func setup(t *testing.T) (*zap.Logger, *registry.ValidatorRegistry) {
	l := zap.NewNop()
	r := registry.NewValidatorRegistry("", l)
	_, err := r.LoadFromReader(strings.NewReader(strings.Join([]string{
		"index,pubkey,bond_type,node,pool_id",
		"1001,0xa,8,node-a,0xpool1",
		"1002,0xb,16,node-b,0xpool2",
	}, "\n")))
	assert.Nil(t, err)
	return l, r
}

func int64Ptr(v int64) *int64 {
	return &v
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func Test_ProcessWithdrawals(t *testing.T) {
	l, r := setup(t)
	ctx := context.Background()

	t.Run("Should flag exits by validator status and share the epoch timestamp", func(t *testing.T) {
		blocks := &fakeBlockSource{
			slots: &beaconchain.EpochSlotsResponse{Status: "OK", Data: []*beaconchain.EpochSlot{
				{Slot: 6400, ExecTimestamp: int64Ptr(100)},
				{Slot: 6431, ExecTimestamp: int64Ptr(472)},
			}},
		}
		p := NewEventProcessor(blocks, r, l)

		raw := &beaconchain.WithdrawalsResponse{Status: "OK", Data: []*beaconchain.ValidatorWithdrawal{
			{Epoch: 210, ValidatorIndex: 1001, Amount: decimal.NewFromInt(17_000_000)},
			{Epoch: 250, ValidatorIndex: 1002, Amount: decimal.NewFromInt(32_010_000_000)},
			{Epoch: 260, ValidatorIndex: 7777, Amount: decimal.NewFromInt(5)},
		}}
		statuses := map[string]string{
			"1001": "active_ongoing",
			"1002": "withdrawal_done",
		}

		events, err := p.ProcessWithdrawals(ctx, raw, 200, statuses)
		assert.Nil(t, err)
		assert.Len(t, events, 3)

		assert.Equal(t, rewardTypes.Kind_Withdrawal, events[0].Kind)
		assert.False(t, events[0].IsExit())
		assert.Equal(t, uint64(210), events[0].Epoch)
		assert.Equal(t, "8", events[0].BondType)
		assert.Equal(t, "node-a", events[0].Node)
		assert.Equal(t, "0xpool1", events[0].PoolId)
		assert.Equal(t, int64(472), *events[0].Timestamp)

		assert.True(t, events[1].IsExit())
		assert.Equal(t, int64(472), *events[1].Timestamp)

		assert.False(t, events[2].IsExit())
		assert.Equal(t, "", events[2].Node)
	})
	t.Run("Should resolve the timestamp once per epoch", func(t *testing.T) {
		blocks := &fakeBlockSource{
			slots: &beaconchain.EpochSlotsResponse{Status: "OK", Data: []*beaconchain.EpochSlot{{ExecTimestamp: int64Ptr(1)}}},
		}
		p := NewEventProcessor(blocks, r, l)
		raw := &beaconchain.WithdrawalsResponse{Data: []*beaconchain.ValidatorWithdrawal{
			{Epoch: 300, ValidatorIndex: 1001, Amount: decimal.NewFromInt(1)},
		}}

		_, _ = p.ProcessWithdrawals(ctx, raw, 300, nil)
		_, _ = p.ProcessWithdrawals(ctx, raw, 300, nil)
		assert.Equal(t, 1, blocks.slotsCalls)

		_, _ = p.ProcessWithdrawals(ctx, raw, 400, nil)
		assert.Equal(t, 2, blocks.slotsCalls)
	})
	t.Run("Should keep withdrawals without a timestamp when slots fail", func(t *testing.T) {
		blocks := &fakeBlockSource{slotsErr: errors.New("boom")}
		p := NewEventProcessor(blocks, r, l)
		raw := &beaconchain.WithdrawalsResponse{Data: []*beaconchain.ValidatorWithdrawal{
			{Epoch: 300, ValidatorIndex: 1001, Amount: decimal.NewFromInt(1)},
		}}

		events, err := p.ProcessWithdrawals(ctx, raw, 300, nil)
		assert.Nil(t, err)
		assert.Len(t, events, 1)
		assert.Nil(t, events[0].Timestamp)
	})
	t.Run("Should retry the timestamp lookup after a failure", func(t *testing.T) {
		blocks := &fakeBlockSource{slotsErr: errors.New("boom")}
		p := NewEventProcessor(blocks, r, l)
		raw := &beaconchain.WithdrawalsResponse{Data: []*beaconchain.ValidatorWithdrawal{
			{Epoch: 300, ValidatorIndex: 1001, Amount: decimal.NewFromInt(1)},
		}}

		events, err := p.ProcessWithdrawals(ctx, raw, 300, nil)
		assert.Nil(t, err)
		assert.Nil(t, events[0].Timestamp)

		blocks.slotsErr = nil
		blocks.slots = &beaconchain.EpochSlotsResponse{Status: "OK", Data: []*beaconchain.EpochSlot{{ExecTimestamp: int64Ptr(1700)}}}
		events, err = p.ProcessWithdrawals(ctx, raw, 300, nil)
		assert.Nil(t, err)
		assert.Equal(t, 2, blocks.slotsCalls)
		assert.Equal(t, int64(1700), *events[0].Timestamp)
	})
	t.Run("Should return nothing for an empty response", func(t *testing.T) {
		blocks := &fakeBlockSource{}
		p := NewEventProcessor(blocks, r, l)

		events, err := p.ProcessWithdrawals(ctx, &beaconchain.WithdrawalsResponse{}, 300, nil)
		assert.Nil(t, err)
		assert.Len(t, events, 0)
		assert.Equal(t, 0, blocks.slotsCalls)
	})
}

func Test_ProcessProposals(t *testing.T) {
	l, r := setup(t)
	ctx := context.Background()

	blocks := &fakeBlockSource{
		blocks: map[uint64]*beaconchain.ExecutionBlockResponse{
			100: {Status: "OK", Data: []*beaconchain.ExecutionBlock{{
				BlockNumber:    100,
				Timestamp:      1700000000,
				BlockMevReward: decimal.RequireFromString("90000000000000000"),
				ProducerReward: decimal.RequireFromString("1000"),
				Relay:          &beaconchain.Relay{Tag: "flashbots"},
				PosConsensus:   beaconchain.PosConsensus{Epoch: 205, ProposerIndex: 1001},
			}}},
			101: {Status: "OK", Data: []*beaconchain.ExecutionBlock{{
				BlockNumber:    101,
				Timestamp:      1700000012,
				BlockMevReward: decimal.Zero,
				ProducerReward: decimal.RequireFromString("45000000000000000"),
				PosConsensus:   beaconchain.PosConsensus{Epoch: 206, ProposerIndex: 1002},
			}}},
		},
		blockErrs: map[uint64]error{
			404: &beaconchain.UpstreamError{Op: "executionBlock", StatusCode: http.StatusNotFound, Err: errors.New("not found")},
			500: &beaconchain.UpstreamError{Op: "executionBlock", StatusCode: http.StatusInternalServerError, Err: errors.New("boom")},
		},
	}

	t.Run("Should attribute MEV from the relay or fall back to the producer reward", func(t *testing.T) {
		p := NewEventProcessor(blocks, r, l)
		raw := &beaconchain.ProposalsResponse{Data: []*beaconchain.ValidatorProposal{
			{Epoch: 200, ExecBlockNumber: uint64Ptr(100)},
			{Epoch: 200, ExecBlockNumber: uint64Ptr(101)},
		}}

		events, err := p.ProcessProposals(ctx, raw, 200)
		assert.Nil(t, err)
		assert.Len(t, events, 2)

		mev := events[0]
		assert.Equal(t, rewardTypes.Kind_Proposal, mev.Kind)
		assert.Equal(t, "flashbots", mev.MevSource())
		assert.Equal(t, "90000000000000000", mev.Amount.String())
		assert.Equal(t, uint64(205), mev.Epoch)
		assert.Equal(t, uint64(1001), mev.ValidatorIndex)
		assert.Equal(t, int64(1700000000), *mev.Timestamp)
		assert.Equal(t, uint64(100), *mev.Proposal.ExecBlockNumber)
		assert.Equal(t, "node-a", mev.Node)
		assert.False(t, mev.IsExit())

		local := events[1]
		assert.Equal(t, "", local.MevSource())
		assert.Equal(t, "45000000000000000", local.Amount.String())
		assert.Equal(t, "16", local.BondType)
	})
	t.Run("Should skip proposals that cannot be priced", func(t *testing.T) {
		p := NewEventProcessor(blocks, r, l)
		raw := &beaconchain.ProposalsResponse{Data: []*beaconchain.ValidatorProposal{
			{Epoch: 200, ExecBlockNumber: nil},
			{Epoch: 200, ExecBlockNumber: uint64Ptr(0)},
			{Epoch: 200, ExecBlockNumber: uint64Ptr(404)},
			{Epoch: 200, ExecBlockNumber: uint64Ptr(999)},
			{Epoch: 200, ExecBlockNumber: uint64Ptr(100)},
		}}

		events, err := p.ProcessProposals(ctx, raw, 200)
		assert.Nil(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, uint64(1001), events[0].ValidatorIndex)
	})
	t.Run("Should abort the epoch on other upstream errors", func(t *testing.T) {
		p := NewEventProcessor(blocks, r, l)
		raw := &beaconchain.ProposalsResponse{Data: []*beaconchain.ValidatorProposal{
			{Epoch: 200, ExecBlockNumber: uint64Ptr(100)},
			{Epoch: 200, ExecBlockNumber: uint64Ptr(500)},
		}}

		events, err := p.ProcessProposals(ctx, raw, 200)
		assert.Nil(t, events)
		var upstream *beaconchain.UpstreamError
		assert.ErrorAs(t, err, &upstream)
	})
}
