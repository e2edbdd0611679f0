package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/li-blockchain/rewards-collector/internal/metrics/metricsTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	Mode_Backfill = "backfill"
	Mode_Monitor  = "monitor"
)

// ResolveStartEpoch picks where collection begins: an explicit override, then
// the epoch after the checkpoint, then the epoch after the newest ledger
// record, then fallback.
func (cc *CollectionController) ResolveStartEpoch(override *uint64, fallback uint64) (uint64, error) {
	if override != nil {
		cc.logger.Sugar().Infow("Using start epoch override", zap.Uint64("epoch", *override))
		return *override, nil
	}

	checkpoint, ok, err := cc.ledger.ReadCheckpoint()
	if err != nil {
		return 0, err
	}
	if ok {
		next := checkpoint + cc.config.EpochInterval
		cc.logger.Sugar().Infow("Resuming from checkpoint",
			zap.Uint64("checkpoint", checkpoint),
			zap.Uint64("epoch", next),
		)
		return next, nil
	}

	maxEpoch, ok, err := cc.ledger.MaxEpoch()
	if err != nil {
		return 0, err
	}
	if ok {
		next := maxEpoch + cc.config.EpochInterval
		cc.logger.Sugar().Infow("Resuming from newest ledger record",
			zap.Uint64("maxEpoch", maxEpoch),
			zap.Uint64("epoch", next),
		)
		return next, nil
	}

	cc.logger.Sugar().Infow("No checkpoint or ledger found, using configured start epoch", zap.Uint64("epoch", fallback))
	return fallback, nil
}

// wait sleeps for d in the Waiting state. It only fails when ctx is done.
func (cc *CollectionController) wait(ctx context.Context, d time.Duration) error {
	cc.setState(State_Waiting)
	return cc.clock.Sleep(ctx, d)
}

func (cc *CollectionController) latestFinalized(ctx context.Context) uint64 {
	latest := cc.client.GetLatestFinalizedEpoch(context.WithoutCancel(ctx))
	if latest > 0 {
		_ = cc.metrics.Gauge(metricsTypes.Metric_Gauge_FinalizedEpoch, float64(latest), nil)
	}
	return latest
}

func (cc *CollectionController) recordEpoch(mode string, err error) {
	labels := []metricsTypes.MetricsLabel{{Name: metricsTypes.Label_Mode, Value: mode}}
	if err != nil {
		_ = cc.metrics.Incr(metricsTypes.Metric_Incr_CycleFailed, labels, 1)
		return
	}
	_ = cc.metrics.Incr(metricsTypes.Metric_Incr_EpochProcessed, labels, 1)
}

// collectCycle collects epoch and then moves the checkpoint forward. The
// checkpoint never moves backwards, so re-collecting an old epoch does not
// rewind resume.
func (cc *CollectionController) collectCycle(ctx context.Context, epoch uint64) error {
	if _, err := cc.CollectEpoch(ctx, epoch); err != nil {
		return err
	}
	current, ok, err := cc.ledger.ReadCheckpoint()
	if err != nil {
		return errors.Wrap(err, "failed to read checkpoint")
	}
	if ok && current >= epoch {
		return nil
	}
	if err := cc.ledger.WriteCheckpoint(epoch); err != nil {
		return errors.Wrap(err, "failed to write checkpoint")
	}
	return nil
}

type BackfillResult struct {
	StartEpoch uint64
	LastEpoch  uint64
	Epochs     int
	Elapsed    time.Duration
}

func completionMessage(res *BackfillResult) string {
	return fmt.Sprintf("Backfill Complete on Epoch %d!\nTotal time: %.1f seconds", res.LastEpoch, res.Elapsed.Seconds())
}

// RunBackfill collects every epoch interval from start until it passes the
// finalized tip. A failed epoch is retried after the retry delay. It returns
// ctx.Err() when cancelled between cycles.
func (cc *CollectionController) RunBackfill(ctx context.Context, start uint64) (*BackfillResult, error) {
	started := cc.clock.Now()
	res := &BackfillResult{StartEpoch: start}
	if start >= cc.config.EpochInterval {
		res.LastEpoch = start - cc.config.EpochInterval
	}

	cc.logger.Sugar().Infow("Starting backfill",
		zap.Uint64("startEpoch", start),
		zap.Uint64("epochInterval", cc.config.EpochInterval),
		zap.Duration("delay", cc.config.BackfillDelay),
	)

	next := start
	for {
		if err := ctx.Err(); err != nil {
			cc.logger.Sugar().Infow("Backfill stopped", zap.Uint64("nextEpoch", next))
			return res, err
		}

		latest := cc.latestFinalized(ctx)
		if latest == 0 {
			cc.logger.Sugar().Warnw("Finalized epoch unavailable, waiting", zap.Duration("retryDelay", cc.config.RetryDelay))
			if err := cc.wait(ctx, cc.config.RetryDelay); err != nil {
				return res, err
			}
			continue
		}

		if next > latest {
			res.Elapsed = cc.clock.Now().Sub(started)
			cc.setState(State_Done)
			cc.logger.Sugar().Infow("Backfill complete",
				zap.Uint64("lastEpoch", res.LastEpoch),
				zap.Uint64("latestFinalized", latest),
				zap.Int("epochs", res.Epochs),
				zap.Duration("elapsed", res.Elapsed),
			)
			cc.Notify(ctx, completionMessage(res))
			return res, nil
		}

		err := cc.collectCycle(ctx, next)
		cc.recordEpoch(Mode_Backfill, err)
		if err != nil {
			cc.logger.Sugar().Errorw("Backfill cycle failed, retrying epoch",
				zap.Uint64("epoch", next),
				zap.Duration("retryDelay", cc.config.RetryDelay),
				zap.Error(err),
			)
			if err := cc.wait(ctx, cc.config.RetryDelay); err != nil {
				return res, err
			}
			continue
		}

		res.LastEpoch = next
		res.Epochs++
		if cc.progress != nil {
			cc.progress(next, latest)
		}
		next += cc.config.EpochInterval

		if cc.config.BackfillDelay > 0 {
			if err := cc.wait(ctx, cc.config.BackfillDelay); err != nil {
				return res, err
			}
		}
	}
}

// RunMonitor collects new epochs as they finalize and never returns until ctx
// is done.
func (cc *CollectionController) RunMonitor(ctx context.Context, start uint64) error {
	cc.logger.Sugar().Infow("Starting monitor",
		zap.Uint64("startEpoch", start),
		zap.Uint64("epochInterval", cc.config.EpochInterval),
		zap.Duration("checkInterval", cc.config.CheckInterval),
	)

	next := start
	for {
		if err := ctx.Err(); err != nil {
			cc.logger.Sugar().Infow("Monitor stopped", zap.Uint64("nextEpoch", next))
			return err
		}

		latest := cc.latestFinalized(ctx)
		if latest == 0 || next > latest {
			cc.logger.Sugar().Infow("Waiting for epoch to finalize",
				zap.Uint64("nextEpoch", next),
				zap.Uint64("latestFinalized", latest),
			)
			if err := cc.wait(ctx, cc.config.CheckInterval); err != nil {
				return err
			}
			continue
		}

		err := cc.collectCycle(ctx, next)
		cc.recordEpoch(Mode_Monitor, err)
		if err != nil {
			cc.logger.Sugar().Errorw("Monitor cycle failed, retrying epoch",
				zap.Uint64("epoch", next),
				zap.Duration("retryDelay", cc.config.RetryDelay),
				zap.Error(err),
			)
			if err := cc.wait(ctx, cc.config.RetryDelay); err != nil {
				return err
			}
			continue
		}

		if cc.progress != nil {
			cc.progress(next, latest)
		}
		next += cc.config.EpochInterval

		delay := cc.config.CheckInterval
		if next <= latest {
			delay = cc.config.BackfillDelay
		}
		if err := cc.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// Notify sends msg through the configured notifier. Failures are logged only.
func (cc *CollectionController) Notify(ctx context.Context, msg string) {
	if cc.notifier == nil {
		return
	}
	if err := cc.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		cc.logger.Sugar().Errorw("Failed to send notification", zap.Error(err))
	}
}
