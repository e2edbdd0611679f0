// Package processor turns raw rewards api responses into ledger events.
package processor

import (
	"context"
	"strconv"
	"sync"

	"github.com/li-blockchain/rewards-collector/pkg/clients/beaconchain"
	"github.com/li-blockchain/rewards-collector/pkg/registry"
	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type BlockSource interface {
	GetExecutionBlock(ctx context.Context, blockNumber uint64) (*beaconchain.ExecutionBlockResponse, error)
	GetEpochSlots(ctx context.Context, epoch uint64) (*beaconchain.EpochSlotsResponse, error)
}

type ValidatorLookup interface {
	Lookup(index string) (*registry.ValidatorRecord, bool)
}

type itemStatus int

const (
	itemKept itemStatus = iota
	itemSkipped
)

// itemResult is the outcome of a single proposal. An error returned next to
// it aborts the whole epoch instead.
type itemResult struct {
	status itemStatus
	event  *rewardTypes.RewardEvent
	reason string
}

func kept(e *rewardTypes.RewardEvent) itemResult {
	return itemResult{status: itemKept, event: e}
}

func skipped(reason string) itemResult {
	return itemResult{status: itemSkipped, reason: reason}
}

type EventProcessor struct {
	blocks     BlockSource
	validators ValidatorLookup
	logger     *zap.Logger

	mu sync.Mutex
	// timestamp of the last epoch resolved, shared by every chunk of that epoch
	timestampEpoch    uint64
	timestamp         *int64
	timestampResolved bool
}

func NewEventProcessor(blocks BlockSource, validators ValidatorLookup, l *zap.Logger) *EventProcessor {
	return &EventProcessor{
		blocks:     blocks,
		validators: validators,
		logger:     l,
	}
}

func (ep *EventProcessor) withValidator(e *rewardTypes.RewardEvent) *rewardTypes.RewardEvent {
	v, ok := ep.validators.Lookup(strconv.FormatUint(e.ValidatorIndex, 10))
	if !ok {
		return e.WithValidator("", "", "")
	}
	return e.WithValidator(v.BondType, v.Node, v.PoolId)
}

// epochTimestamp resolves the exec timestamp of the epoch's last slot once per
// epoch. Lookup failures yield nil.
func (ep *EventProcessor) epochTimestamp(ctx context.Context, epoch uint64) *int64 {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.timestampResolved && ep.timestampEpoch == epoch {
		return ep.timestamp
	}

	slots, err := ep.blocks.GetEpochSlots(ctx, epoch)
	if err != nil {
		// not cached, the next call retries the lookup
		ep.logger.Sugar().Warnw("Could not get epoch slots, withdrawals will have no timestamp",
			zap.Uint64("epoch", epoch),
			zap.Error(err),
		)
		return nil
	}
	ts := slots.LastExecTimestamp()

	ep.timestampEpoch = epoch
	ep.timestamp = ts
	ep.timestampResolved = true
	return ts
}

// ProcessWithdrawals converts withdrawals into events, flagging those of
// validators whose status says they have exited.
func (ep *EventProcessor) ProcessWithdrawals(
	ctx context.Context,
	raw *beaconchain.WithdrawalsResponse,
	epoch uint64,
	statuses map[string]string,
) ([]*rewardTypes.RewardEvent, error) {
	if raw == nil || len(raw.Data) == 0 {
		return []*rewardTypes.RewardEvent{}, nil
	}

	timestamp := ep.epochTimestamp(ctx, epoch)

	events := make([]*rewardTypes.RewardEvent, 0, len(raw.Data))
	exits := 0
	for _, w := range raw.Data {
		if w == nil {
			continue
		}
		isExit := beaconchain.IsExitedStatus(statuses[strconv.FormatUint(w.ValidatorIndex, 10)])
		if isExit {
			exits++
		}
		e := rewardTypes.NewWithdrawalEvent(w.ValidatorIndex, w.Amount, w.Epoch, timestamp, isExit)
		events = append(events, ep.withValidator(e))
	}

	if exits > 0 {
		ep.logger.Sugar().Infow("Found exit withdrawals",
			zap.Uint64("epoch", epoch),
			zap.Int("exits", exits),
		)
	}
	return events, nil
}

// ProcessProposals prices each proposal from its execution block. Proposals
// that cannot be priced are skipped; other upstream failures are returned.
func (ep *EventProcessor) ProcessProposals(
	ctx context.Context,
	raw *beaconchain.ProposalsResponse,
	epoch uint64,
) ([]*rewardTypes.RewardEvent, error) {
	if raw == nil || len(raw.Data) == 0 {
		return []*rewardTypes.RewardEvent{}, nil
	}

	events := make([]*rewardTypes.RewardEvent, 0, len(raw.Data))
	skippedCount := 0
	for _, p := range raw.Data {
		res, err := ep.processProposal(ctx, p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to process proposals for epoch %d", epoch)
		}
		switch res.status {
		case itemKept:
			events = append(events, res.event)
		case itemSkipped:
			skippedCount++
			ep.logger.Sugar().Infow("Skipping proposal",
				zap.Uint64("epoch", epoch),
				zap.String("reason", res.reason),
			)
		}
	}

	ep.logger.Sugar().Debugw("Processed proposals",
		zap.Uint64("epoch", epoch),
		zap.Int("kept", len(events)),
		zap.Int("skipped", skippedCount),
	)
	return events, nil
}

func (ep *EventProcessor) processProposal(ctx context.Context, p *beaconchain.ValidatorProposal) (itemResult, error) {
	if p == nil || p.ExecBlockNumber == nil || *p.ExecBlockNumber == 0 {
		return skipped("no execution block number"), nil
	}
	blockNumber := *p.ExecBlockNumber

	blockRes, err := ep.blocks.GetExecutionBlock(ctx, blockNumber)
	if err != nil {
		if beaconchain.IsNotFound(err) {
			return skipped("execution block " + strconv.FormatUint(blockNumber, 10) + " not found"), nil
		}
		return itemResult{}, err
	}
	if blockRes == nil || len(blockRes.Data) == 0 || blockRes.Data[0] == nil {
		return skipped("execution block " + strconv.FormatUint(blockNumber, 10) + " has no data"), nil
	}

	block := blockRes.Data[0]
	detail := rewardTypes.ProposalDetail{ExecBlockNumber: &blockNumber}
	amount := block.ProducerReward
	if block.Relay != nil && block.Relay.Tag != "" {
		detail.MevSource = block.Relay.Tag
		amount = block.BlockMevReward
	}

	timestamp := block.Timestamp
	e := rewardTypes.NewProposalEvent(
		block.PosConsensus.ProposerIndex,
		amount,
		block.PosConsensus.Epoch,
		&timestamp,
		detail,
	)
	return kept(ep.withValidator(e)), nil
}
