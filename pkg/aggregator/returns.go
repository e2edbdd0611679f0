package aggregator

import (
	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/shopspring/decimal"
)

const percentPrecision = 8

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// ReturnAnalysis relates earnings to the capital the operator put up for the
// validators seen in a range.
type ReturnAnalysis struct {
	TotalInvestment decimal.Decimal `json:"totalInvestment"`
	RateOfReturn    decimal.Decimal `json:"rateOfReturn"`
	AnnualizedRate  decimal.Decimal `json:"annualizedRate"`
	DurationDays    int             `json:"durationDays"`
}

type investmentKey struct {
	validatorIndex uint64
	bondType       string
}

// CalculateReturns sums the investment of every distinct validator and bond
// type pair and derives the rate of return from grandTotal. Rates are zero
// when there is no investment or the range is shorter than a day.
func CalculateReturns(events []*rewardTypes.RewardEvent, grandTotal decimal.Decimal, durationDays int) *ReturnAnalysis {
	seen := make(map[investmentKey]struct{})
	investment := decimal.Zero
	for _, e := range events {
		k := investmentKey{validatorIndex: e.ValidatorIndex, bondType: e.BondType}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		investment = investment.Add(decimal.NewFromInt(ClassifyBond(e.BondType).InvestmentEth()))
	}

	ra := &ReturnAnalysis{
		TotalInvestment: investment,
		RateOfReturn:    decimal.Zero,
		AnnualizedRate:  decimal.Zero,
		DurationDays:    durationDays,
	}
	if investment.IsZero() {
		return ra
	}
	ra.RateOfReturn = grandTotal.Mul(hundred).DivRound(investment, percentPrecision)
	if durationDays > 0 {
		ra.AnnualizedRate = ra.RateOfReturn.Mul(daysPerYear).DivRound(decimal.NewFromInt(int64(durationDays)), percentPrecision)
	}
	return ra
}
