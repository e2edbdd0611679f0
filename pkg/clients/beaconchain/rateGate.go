package beaconchain

import (
	"context"
	"time"

	"github.com/li-blockchain/rewards-collector/pkg/clock"
	"golang.org/x/time/rate"
)

// RateGate spaces calls at least 1/perSecond apart. The limiter has a burst
// of one, so idle time never earns more than a single immediate call.
type RateGate struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

// NewRateGate returns a gate allowing perSecond calls per second. A
// non-positive rate disables the gate.
func NewRateGate(perSecond float64, c clock.Clock) *RateGate {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RateGate{
		limiter: rate.NewLimiter(limit, 1),
		clock:   c,
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (g *RateGate) Wait(ctx context.Context) error {
	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := g.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(g.clock.Now())
		return err
	}
	return nil
}

func (g *RateGate) Interval() time.Duration {
	if g.limiter.Limit() == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(g.limiter.Limit()))
}
