package collector

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/li-blockchain/rewards-collector/pkg/clients/beaconchain"
	"github.com/li-blockchain/rewards-collector/pkg/clock"
	"github.com/li-blockchain/rewards-collector/pkg/ledger"
	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type staticChunks [][]string

func (s staticChunks) Chunk(size int) [][]string {
	return s
}

type fakeClient struct {
	mu sync.Mutex

	// finalized epochs returned in order, the last one repeats
	latest           []uint64
	latestCalls      int
	withdrawalEpochs []uint64
	proposalEpochs   []uint64
	failWithdrawals  int
	statuses         map[string]string
}

func (f *fakeClient) GetWithdrawals(ctx context.Context, indices []string, epoch uint64) (*beaconchain.WithdrawalsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawalEpochs = append(f.withdrawalEpochs, epoch)
	if f.failWithdrawals > 0 {
		f.failWithdrawals--
		return nil, &beaconchain.UpstreamError{Op: "withdrawals", StatusCode: 500}
	}
	res := &beaconchain.WithdrawalsResponse{Status: "OK"}
	for _, idx := range indices {
		index, _ := strconv.ParseUint(idx, 10, 64)
		res.Data = append(res.Data, &beaconchain.ValidatorWithdrawal{
			Epoch:          epoch,
			ValidatorIndex: index,
			Amount:         decimal.NewFromInt(1000),
		})
	}
	return res, nil
}

func (f *fakeClient) GetProposals(ctx context.Context, indices []string, epoch uint64) (*beaconchain.ProposalsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposalEpochs = append(f.proposalEpochs, epoch)
	return &beaconchain.ProposalsResponse{Status: "OK"}, nil
}

func (f *fakeClient) GetValidatorStatuses(ctx context.Context, indices []string) map[string]string {
	if f.statuses == nil {
		return map[string]string{}
	}
	return f.statuses
}

func (f *fakeClient) GetLatestFinalizedEpoch(ctx context.Context) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.latestCalls
	if i >= len(f.latest) {
		i = len(f.latest) - 1
	}
	f.latestCalls++
	return f.latest[i]
}

type fakeProcessor struct{}

func (fakeProcessor) ProcessWithdrawals(ctx context.Context, raw *beaconchain.WithdrawalsResponse, epoch uint64, statuses map[string]string) ([]*rewardTypes.RewardEvent, error) {
	events := make([]*rewardTypes.RewardEvent, 0)
	for _, w := range raw.Data {
		isExit := beaconchain.IsExitedStatus(statuses[strconv.FormatUint(w.ValidatorIndex, 10)])
		events = append(events, rewardTypes.NewWithdrawalEvent(w.ValidatorIndex, w.Amount, w.Epoch, nil, isExit))
	}
	return events, nil
}

func (fakeProcessor) ProcessProposals(ctx context.Context, raw *beaconchain.ProposalsResponse, epoch uint64) ([]*rewardTypes.RewardEvent, error) {
	return []*rewardTypes.RewardEvent{}, nil
}

type fakeLedger struct {
	merged     []uint64
	events     map[uint64][]*rewardTypes.RewardEvent
	checkpoint *uint64
	maxEpoch   *uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{events: map[uint64][]*rewardTypes.RewardEvent{}}
}

func (f *fakeLedger) Merge(events []*rewardTypes.RewardEvent, epoch uint64) (*ledger.MergeResult, error) {
	f.merged = append(f.merged, epoch)
	f.events[epoch] = events
	total := 0
	for _, e := range f.events {
		total += len(e)
	}
	return &ledger.MergeResult{Epoch: epoch, Added: len(events), Total: total}, nil
}

func (f *fakeLedger) MaxEpoch() (uint64, bool, error) {
	if f.maxEpoch == nil {
		return 0, false, nil
	}
	return *f.maxEpoch, true, nil
}

func (f *fakeLedger) ReadCheckpoint() (uint64, bool, error) {
	if f.checkpoint == nil {
		return 0, false, nil
	}
	return *f.checkpoint, true, nil
}

func (f *fakeLedger) WriteCheckpoint(epoch uint64) error {
	f.checkpoint = &epoch
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(ctx context.Context, msg string) error {
	f.messages = append(f.messages, msg)
	return nil
}

type fixture struct {
	client   *fakeClient
	ledger   *fakeLedger
	notifier *fakeNotifier
	clock    *clock.FakeClock
	cc       *CollectionController
	progress []uint64
}

func setup(latest ...uint64) *fixture {
	f := &fixture{
		client:   &fakeClient{latest: latest},
		ledger:   newFakeLedger(),
		notifier: &fakeNotifier{},
		clock:    clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	cfg := &CollectionControllerConfig{
		ChunkSize:     2,
		EpochInterval: 100,
		BackfillDelay: 15 * time.Second,
		CheckInterval: 60 * time.Second,
		RetryDelay:    30 * time.Second,
	}
	f.cc = NewCollectionController(cfg,
		staticChunks{{"1", "2"}, {"3"}},
		f.client,
		fakeProcessor{},
		f.ledger,
		zap.NewNop(),
		WithClock(f.clock),
		WithNotifier(f.notifier),
		WithProgress(func(epoch uint64, latest uint64) {
			f.progress = append(f.progress, epoch)
		}),
	)
	return f
}

func ptr(v uint64) *uint64 {
	return &v
}

func Test_CollectEpoch(t *testing.T) {
	t.Run("Should collect every chunk and merge once", func(t *testing.T) {
		f := setup(1000)
		f.client.statuses = map[string]string{"3": beaconchain.ValidatorStatus_WithdrawalDone}

		res, err := f.cc.CollectEpoch(context.Background(), 500)
		assert.Nil(t, err)
		assert.Equal(t, uint64(500), res.Epoch)
		assert.Equal(t, 3, res.Withdrawals)
		assert.Equal(t, 0, res.Proposals)
		assert.Equal(t, 1, res.Exits)
		assert.Equal(t, 3, res.LedgerRecords)

		assert.Equal(t, []uint64{500, 500}, f.client.withdrawalEpochs)
		assert.Equal(t, []uint64{500, 500}, f.client.proposalEpochs)
		assert.Equal(t, []uint64{500}, f.ledger.merged)
		assert.Nil(t, f.ledger.checkpoint)
		assert.Equal(t, State_Idle, f.cc.State())
	})
	t.Run("Should not persist when a chunk fails", func(t *testing.T) {
		f := setup(1000)
		f.client.failWithdrawals = 1

		_, err := f.cc.CollectEpoch(context.Background(), 500)
		assert.NotNil(t, err)
		assert.Len(t, f.ledger.merged, 0)
		assert.Nil(t, f.ledger.checkpoint)
		assert.Equal(t, State_Failed, f.cc.State())
	})
	t.Run("Should not rewind resume when re-collecting an old epoch", func(t *testing.T) {
		f := setup(60000)
		f.ledger.checkpoint = ptr(50000)
		f.ledger.maxEpoch = ptr(50099)

		_, err := f.cc.CollectEpoch(context.Background(), 100)
		assert.Nil(t, err)
		assert.Equal(t, uint64(50000), *f.ledger.checkpoint)

		epoch, err := f.cc.ResolveStartEpoch(nil, 0)
		assert.Nil(t, err)
		assert.Equal(t, uint64(50100), epoch)
	})
	t.Run("Should finish in-flight work after cancellation", func(t *testing.T) {
		f := setup(1000)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.cc.CollectEpoch(ctx, 500)
		assert.Nil(t, err)
		assert.Equal(t, []uint64{500}, f.ledger.merged)
	})
}

func Test_ResolveStartEpoch(t *testing.T) {
	t.Run("Should prefer the override", func(t *testing.T) {
		f := setup(1000)
		f.ledger.checkpoint = ptr(700)
		epoch, err := f.cc.ResolveStartEpoch(ptr(42), 5)
		assert.Nil(t, err)
		assert.Equal(t, uint64(42), epoch)
	})
	t.Run("Should resume after the checkpoint", func(t *testing.T) {
		f := setup(1000)
		f.ledger.checkpoint = ptr(700)
		f.ledger.maxEpoch = ptr(900)
		epoch, err := f.cc.ResolveStartEpoch(nil, 5)
		assert.Nil(t, err)
		assert.Equal(t, uint64(800), epoch)
	})
	t.Run("Should resume after the newest ledger record", func(t *testing.T) {
		f := setup(1000)
		f.ledger.maxEpoch = ptr(900)
		epoch, err := f.cc.ResolveStartEpoch(nil, 5)
		assert.Nil(t, err)
		assert.Equal(t, uint64(1000), epoch)
	})
	t.Run("Should fall back to the configured epoch", func(t *testing.T) {
		f := setup(1000)
		epoch, err := f.cc.ResolveStartEpoch(nil, 5)
		assert.Nil(t, err)
		assert.Equal(t, uint64(5), epoch)
	})
}

func Test_RunBackfill(t *testing.T) {
	t.Run("Should wait for the finalized epoch and stop past the tip", func(t *testing.T) {
		f := setup(0, 300)

		res, err := f.cc.RunBackfill(context.Background(), 100)
		assert.Nil(t, err)
		assert.Equal(t, []uint64{100, 200, 300}, f.ledger.merged)
		assert.Equal(t, []uint64{100, 200, 300}, f.progress)
		assert.Equal(t, uint64(300), res.LastEpoch)
		assert.Equal(t, 3, res.Epochs)
		assert.Equal(t, uint64(300), *f.ledger.checkpoint)
		assert.Equal(t, State_Done, f.cc.State())

		assert.Equal(t, []time.Duration{
			30 * time.Second,
			15 * time.Second,
			15 * time.Second,
			15 * time.Second,
		}, f.clock.Sleeps())
		assert.Equal(t, 75*time.Second, res.Elapsed)

		assert.Len(t, f.notifier.messages, 1)
		assert.True(t, strings.HasPrefix(f.notifier.messages[0], "Backfill Complete on Epoch 300!"))
		assert.Contains(t, f.notifier.messages[0], "75.0 seconds")
	})
	t.Run("Should retry the same epoch after a failure", func(t *testing.T) {
		f := setup(100)
		f.client.failWithdrawals = 1

		res, err := f.cc.RunBackfill(context.Background(), 100)
		assert.Nil(t, err)
		assert.Equal(t, []uint64{100, 100, 100}, f.client.withdrawalEpochs)
		assert.Equal(t, []uint64{100}, f.ledger.merged)
		assert.Equal(t, []time.Duration{30 * time.Second, 15 * time.Second}, f.clock.Sleeps())
		assert.Equal(t, uint64(100), res.LastEpoch)
	})
	t.Run("Should never move the checkpoint backwards", func(t *testing.T) {
		f := setup(200)
		f.ledger.checkpoint = ptr(900)

		_, err := f.cc.RunBackfill(context.Background(), 100)
		assert.Nil(t, err)
		assert.Equal(t, []uint64{100, 200}, f.ledger.merged)
		assert.Equal(t, uint64(900), *f.ledger.checkpoint)
	})
	t.Run("Should complete immediately when already past the tip", func(t *testing.T) {
		f := setup(50)

		res, err := f.cc.RunBackfill(context.Background(), 300)
		assert.Nil(t, err)
		assert.Len(t, f.ledger.merged, 0)
		assert.Equal(t, uint64(200), res.LastEpoch)
		assert.Equal(t, 0, res.Epochs)
	})
	t.Run("Should stop when cancelled while waiting", func(t *testing.T) {
		f := setup(0)
		ctx, cancel := context.WithCancel(context.Background())
		f.clock.OnSleep = func(count int) {
			if count == 2 {
				cancel()
			}
		}

		_, err := f.cc.RunBackfill(ctx, 100)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, f.clock.Sleeps(), 2)
		assert.Len(t, f.notifier.messages, 0)
	})
}

func Test_RunMonitor(t *testing.T) {
	t.Run("Should catch up then poll on the check interval", func(t *testing.T) {
		f := setup(200)
		ctx, cancel := context.WithCancel(context.Background())
		f.clock.OnSleep = func(count int) {
			if count == 3 {
				cancel()
			}
		}

		err := f.cc.RunMonitor(ctx, 100)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []uint64{100, 200}, f.ledger.merged)
		assert.Equal(t, []time.Duration{
			15 * time.Second,
			60 * time.Second,
			60 * time.Second,
		}, f.clock.Sleeps())
	})
	t.Run("Should treat an unknown tip as not ready", func(t *testing.T) {
		f := setup(0, 0, 100)
		ctx, cancel := context.WithCancel(context.Background())
		f.clock.OnSleep = func(count int) {
			if count == 3 {
				cancel()
			}
		}

		err := f.cc.RunMonitor(ctx, 100)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []uint64{100}, f.ledger.merged)
	})
	t.Run("Should retry a failed epoch", func(t *testing.T) {
		f := setup(100)
		f.client.failWithdrawals = 2
		ctx, cancel := context.WithCancel(context.Background())
		f.clock.OnSleep = func(count int) {
			if count == 3 {
				cancel()
			}
		}

		err := f.cc.RunMonitor(ctx, 100)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []uint64{100, 100, 100, 100}, f.client.withdrawalEpochs)
		assert.Equal(t, []uint64{100}, f.ledger.merged)
		assert.Equal(t, []time.Duration{
			30 * time.Second,
			30 * time.Second,
			60 * time.Second,
		}, f.clock.Sleeps())
	})
}
