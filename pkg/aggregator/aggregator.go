// Package aggregator turns ledger records into per node earnings summaries.
package aggregator

import (
	"sort"

	"github.com/ethereum/go-ethereum/params"
	"github.com/li-blockchain/rewards-collector/pkg/epochUtils"
	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

const ethDecimals = 18

var (
	weiPerEth  = decimal.NewFromInt(params.Ether)
	gweiPerEth = decimal.NewFromInt(params.Ether / params.GWei)

	// Smallest withdrawal that can be a principal return (the LEB8 bond), in gwei.
	ExitThresholdGwei = decimal.NewFromInt(8).Mul(gweiPerEth)
	// Principal of a full validator, in gwei.
	PrincipalCapGwei = decimal.NewFromInt(32).Mul(gweiPerEth)

	ErrLedgerNotFound = errors.New("ledger file not found")
)

// Entry is a record selected for aggregation. Amount is unadjusted: wei for
// proposals, gwei for withdrawals and exits.
type Entry struct {
	ValidatorIndex uint64
	Node           string
	BondType       string
	Epoch          uint64
	Amount         decimal.Decimal
}

type Classified struct {
	Proposals   []Entry
	Withdrawals []Entry
	Exits       []Entry
}

func entryFromEvent(e *rewardTypes.RewardEvent, amount decimal.Decimal) Entry {
	return Entry{
		ValidatorIndex: e.ValidatorIndex,
		Node:           e.Node,
		BondType:       e.BondType,
		Epoch:          e.Epoch,
		Amount:         amount,
	}
}

// IsExitWithdrawal reports whether a record returns principal: it must be
// flagged as an exit and be at least the smallest bond.
func IsExitWithdrawal(e *rewardTypes.RewardEvent) bool {
	return e.IsExit() && e.Amount.GreaterThanOrEqual(ExitThresholdGwei)
}

// Classify splits records into proposals, regular withdrawals and exits. The
// part of an exit above 32 ETH is treated as a regular withdrawal.
func Classify(events []*rewardTypes.RewardEvent) *Classified {
	c := &Classified{
		Proposals:   make([]Entry, 0),
		Withdrawals: make([]Entry, 0),
		Exits:       make([]Entry, 0),
	}
	for _, e := range events {
		switch e.Kind {
		case rewardTypes.Kind_Proposal:
			c.Proposals = append(c.Proposals, entryFromEvent(e, e.Amount))
		case rewardTypes.Kind_Withdrawal:
			if !IsExitWithdrawal(e) {
				c.Withdrawals = append(c.Withdrawals, entryFromEvent(e, e.Amount))
				continue
			}
			c.Exits = append(c.Exits, entryFromEvent(e, decimal.Min(e.Amount, PrincipalCapGwei)))
			if excess := e.Amount.Sub(PrincipalCapGwei); excess.IsPositive() {
				c.Withdrawals = append(c.Withdrawals, entryFromEvent(e, excess))
			}
		}
	}
	return c
}

func WeiToEth(wei decimal.Decimal) decimal.Decimal {
	return wei.DivRound(weiPerEth, ethDecimals)
}

func GweiToEth(gwei decimal.Decimal) decimal.Decimal {
	return gwei.DivRound(gweiPerEth, ethDecimals)
}

type NodeTotals struct {
	Node        string          `json:"node"`
	Proposals   decimal.Decimal `json:"totalProposals"`
	Withdrawals decimal.Decimal `json:"totalWithdrawals"`
	Exits       decimal.Decimal `json:"totalExits"`
}

// Summary amounts are in ETH. GrandTotal is earnings only and never includes
// exits.
type Summary struct {
	FromEpoch        uint64                                      `json:"fromEpoch"`
	ToEpoch          uint64                                      `json:"toEpoch"`
	PerNode          *orderedmap.OrderedMap[string, *NodeTotals] `json:"perNode"`
	TotalProposals   decimal.Decimal                             `json:"totalProposals"`
	TotalWithdrawals decimal.Decimal                             `json:"totalWithdrawals"`
	TotalExits       decimal.Decimal                             `json:"totalExits"`
	GrandTotal       decimal.Decimal                             `json:"grandTotal"`
	ExitCount        int                                         `json:"exitCount"`
	ValidatorCount   int                                         `json:"validatorCount"`
	RecordCount      int                                         `json:"recordCount"`
	Returns          *ReturnAnalysis                             `json:"returns,omitempty"`
}

// Aggregate applies reward adjustments and sums records per node.
func Aggregate(events []*rewardTypes.RewardEvent) *Summary {
	c := Classify(events)

	nodes := make(map[string]*NodeTotals)
	totalsFor := func(node string) *NodeTotals {
		t, ok := nodes[node]
		if !ok {
			t = &NodeTotals{Node: node}
			nodes[node] = t
		}
		return t
	}

	s := &Summary{}
	for _, p := range c.Proposals {
		eth := WeiToEth(AdjustReward(p.Amount, p.BondType))
		t := totalsFor(p.Node)
		t.Proposals = t.Proposals.Add(eth)
		s.TotalProposals = s.TotalProposals.Add(eth)
	}
	for _, w := range c.Withdrawals {
		eth := GweiToEth(AdjustReward(w.Amount, w.BondType))
		t := totalsFor(w.Node)
		t.Withdrawals = t.Withdrawals.Add(eth)
		s.TotalWithdrawals = s.TotalWithdrawals.Add(eth)
	}
	for _, x := range c.Exits {
		eth := GweiToEth(BondedPrincipal(x.Amount, x.BondType))
		t := totalsFor(x.Node)
		t.Exits = t.Exits.Add(eth)
		s.TotalExits = s.TotalExits.Add(eth)
	}
	s.GrandTotal = s.TotalProposals.Add(s.TotalWithdrawals)

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	s.PerNode = orderedmap.New[string, *NodeTotals](len(names))
	for _, name := range names {
		s.PerNode.Set(name, nodes[name])
	}

	validators := make(map[uint64]struct{})
	for _, e := range events {
		validators[e.ValidatorIndex] = struct{}{}
	}
	s.ExitCount = len(c.Exits)
	s.ValidatorCount = len(validators)
	s.RecordCount = len(events) - s.ExitCount
	return s
}

type LedgerReader interface {
	Exists() (bool, error)
	Range(from uint64, to uint64) ([]*rewardTypes.RewardEvent, error)
}

type RewardAggregator struct {
	ledger LedgerReader
	logger *zap.Logger
}

func NewRewardAggregator(ledger LedgerReader, l *zap.Logger) *RewardAggregator {
	return &RewardAggregator{
		ledger: ledger,
		logger: l,
	}
}

// Summarize aggregates the records with from <= epoch <= to, including a
// return analysis over the same range.
func (ra *RewardAggregator) Summarize(from uint64, to uint64) (*Summary, error) {
	if to < from {
		return nil, errors.Errorf("invalid epoch range %d-%d", from, to)
	}
	exists, err := ra.ledger.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrLedgerNotFound
	}

	events, err := ra.ledger.Range(from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ledger range")
	}

	s := Aggregate(events)
	s.FromEpoch = from
	s.ToEpoch = to
	s.Returns = CalculateReturns(events, s.GrandTotal, epochUtils.DaysBetween(from, to))

	ra.logger.Sugar().Infow("Summarized rewards",
		zap.Uint64("fromEpoch", from),
		zap.Uint64("toEpoch", to),
		zap.Int("records", len(events)),
		zap.Int("exits", s.ExitCount),
		zap.String("grandTotal", s.GrandTotal.String()),
	)
	return s, nil
}
