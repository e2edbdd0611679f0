// Package collector drives the fetch, process and persist cycle for reward
// epochs, either as a bounded backfill or an unbounded monitor.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/li-blockchain/rewards-collector/internal/metrics"
	"github.com/li-blockchain/rewards-collector/internal/metrics/metricsTypes"
	"github.com/li-blockchain/rewards-collector/pkg/clients/beaconchain"
	"github.com/li-blockchain/rewards-collector/pkg/clock"
	"github.com/li-blockchain/rewards-collector/pkg/ledger"
	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type State int32

const (
	State_Idle State = iota
	State_Fetching
	State_Persisting
	State_Waiting
	State_Done
	State_Failed
)

func (s State) String() string {
	switch s {
	case State_Idle:
		return "idle"
	case State_Fetching:
		return "fetching"
	case State_Persisting:
		return "persisting"
	case State_Waiting:
		return "waiting"
	case State_Done:
		return "done"
	case State_Failed:
		return "failed"
	}
	return "unknown"
}

type RewardsClient interface {
	GetWithdrawals(ctx context.Context, indices []string, epoch uint64) (*beaconchain.WithdrawalsResponse, error)
	GetProposals(ctx context.Context, indices []string, epoch uint64) (*beaconchain.ProposalsResponse, error)
	GetValidatorStatuses(ctx context.Context, indices []string) map[string]string
	GetLatestFinalizedEpoch(ctx context.Context) uint64
}

type EventProcessor interface {
	ProcessWithdrawals(ctx context.Context, raw *beaconchain.WithdrawalsResponse, epoch uint64, statuses map[string]string) ([]*rewardTypes.RewardEvent, error)
	ProcessProposals(ctx context.Context, raw *beaconchain.ProposalsResponse, epoch uint64) ([]*rewardTypes.RewardEvent, error)
}

type Ledger interface {
	Merge(events []*rewardTypes.RewardEvent, epoch uint64) (*ledger.MergeResult, error)
	MaxEpoch() (uint64, bool, error)
	ReadCheckpoint() (uint64, bool, error)
	WriteCheckpoint(epoch uint64) error
}

type ValidatorChunker interface {
	Chunk(size int) [][]string
}

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// ProgressFunc is called after every collected epoch with the finalized tip
// known at that time.
type ProgressFunc func(epoch uint64, latest uint64)

type CollectionControllerConfig struct {
	ChunkSize     int
	EpochInterval uint64
	BackfillDelay time.Duration
	CheckInterval time.Duration
	RetryDelay    time.Duration
}

type CollectionController struct {
	config     *CollectionControllerConfig
	validators ValidatorChunker
	client     RewardsClient
	processor  EventProcessor
	ledger     Ledger
	notifier   Notifier
	clock      clock.Clock
	metrics    *metrics.MetricsSink
	progress   ProgressFunc
	logger     *zap.Logger

	state atomic.Int32
}

type ControllerOpt func(*CollectionController)

func WithClock(cl clock.Clock) ControllerOpt {
	return func(cc *CollectionController) {
		cc.clock = cl
	}
}

func WithMetrics(ms *metrics.MetricsSink) ControllerOpt {
	return func(cc *CollectionController) {
		cc.metrics = ms
	}
}

func WithNotifier(n Notifier) ControllerOpt {
	return func(cc *CollectionController) {
		cc.notifier = n
	}
}

func WithProgress(fn ProgressFunc) ControllerOpt {
	return func(cc *CollectionController) {
		cc.progress = fn
	}
}

func NewCollectionController(
	cfg *CollectionControllerConfig,
	validators ValidatorChunker,
	client RewardsClient,
	processor EventProcessor,
	ledgerStore Ledger,
	l *zap.Logger,
	opts ...ControllerOpt,
) *CollectionController {
	cc := &CollectionController{
		config:     cfg,
		validators: validators,
		client:     client,
		processor:  processor,
		ledger:     ledgerStore,
		clock:      clock.NewRealClock(),
		metrics:    metrics.NewNoopMetricsSink(),
		logger:     l,
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

func (cc *CollectionController) State() State {
	return State(cc.state.Load())
}

func (cc *CollectionController) setState(s State) {
	cc.state.Store(int32(s))
}

type CycleResult struct {
	Epoch         uint64
	Withdrawals   int
	Proposals     int
	Exits         int
	LedgerRecords int
	Duration      time.Duration
}

// CollectEpoch fetches every validator chunk for epoch and merges the events
// into the ledger, replacing whatever was stored for epoch before. Requests
// already started run to completion even if ctx is cancelled.
func (cc *CollectionController) CollectEpoch(ctx context.Context, epoch uint64) (*CycleResult, error) {
	cycleId := uuid.New().String()
	started := cc.clock.Now()
	reqCtx := context.WithoutCancel(ctx)

	cc.setState(State_Fetching)
	chunks := cc.validators.Chunk(cc.config.ChunkSize)
	cc.logger.Sugar().Infow("Collecting rewards",
		zap.String("cycleId", cycleId),
		zap.Uint64("epoch", epoch),
		zap.Int("chunks", len(chunks)),
	)

	res := &CycleResult{Epoch: epoch}
	events := make([]*rewardTypes.RewardEvent, 0)
	for i, chunk := range chunks {
		statuses := cc.client.GetValidatorStatuses(reqCtx, chunk)

		withdrawalsRes, err := cc.client.GetWithdrawals(reqCtx, chunk, epoch)
		if err != nil {
			return nil, cc.fail(cycleId, epoch, errors.Wrapf(err, "failed to get withdrawals for chunk %d", i))
		}
		withdrawals, err := cc.processor.ProcessWithdrawals(reqCtx, withdrawalsRes, epoch, statuses)
		if err != nil {
			return nil, cc.fail(cycleId, epoch, err)
		}

		proposalsRes, err := cc.client.GetProposals(reqCtx, chunk, epoch)
		if err != nil {
			return nil, cc.fail(cycleId, epoch, errors.Wrapf(err, "failed to get proposals for chunk %d", i))
		}
		proposals, err := cc.processor.ProcessProposals(reqCtx, proposalsRes, epoch)
		if err != nil {
			return nil, cc.fail(cycleId, epoch, err)
		}

		for _, w := range withdrawals {
			if w.IsExit() {
				res.Exits++
			}
		}
		res.Withdrawals += len(withdrawals)
		res.Proposals += len(proposals)
		events = append(events, withdrawals...)
		events = append(events, proposals...)

		cc.logger.Sugar().Debugw("Collected chunk",
			zap.String("cycleId", cycleId),
			zap.Int("chunk", i),
			zap.Int("validators", len(chunk)),
			zap.Int("withdrawals", len(withdrawals)),
			zap.Int("proposals", len(proposals)),
		)
	}

	cc.setState(State_Persisting)
	merged, err := cc.ledger.Merge(events, epoch)
	if err != nil {
		return nil, cc.fail(cycleId, epoch, err)
	}
	res.LedgerRecords = merged.Total
	res.Duration = cc.clock.Now().Sub(started)

	cc.recordCycle(res)
	cc.setState(State_Idle)

	cc.logger.Sugar().Infow("Completed epoch",
		zap.String("cycleId", cycleId),
		zap.Uint64("epoch", epoch),
		zap.Int("withdrawals", res.Withdrawals),
		zap.Int("proposals", res.Proposals),
		zap.Int("exits", res.Exits),
		zap.Int("ledgerRecords", res.LedgerRecords),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (cc *CollectionController) fail(cycleId string, epoch uint64, err error) error {
	cc.setState(State_Failed)
	cc.logger.Sugar().Errorw("Failed to collect epoch",
		zap.String("cycleId", cycleId),
		zap.Uint64("epoch", epoch),
		zap.Error(err),
	)
	return err
}

func (cc *CollectionController) recordCycle(res *CycleResult) {
	_ = cc.metrics.Incr(metricsTypes.Metric_Incr_EventsCollected, []metricsTypes.MetricsLabel{
		{Name: metricsTypes.Label_Kind, Value: string(rewardTypes.Kind_Withdrawal)},
	}, float64(res.Withdrawals))
	_ = cc.metrics.Incr(metricsTypes.Metric_Incr_EventsCollected, []metricsTypes.MetricsLabel{
		{Name: metricsTypes.Label_Kind, Value: string(rewardTypes.Kind_Proposal)},
	}, float64(res.Proposals))
	_ = cc.metrics.Gauge(metricsTypes.Metric_Gauge_CurrentEpoch, float64(res.Epoch), nil)
	_ = cc.metrics.Gauge(metricsTypes.Metric_Gauge_LedgerRecords, float64(res.LedgerRecords), nil)
	_ = cc.metrics.Timing(metricsTypes.Metric_Timing_EpochDuration, res.Duration, nil)
}
