package aggregator

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type BondClass int

const (
	BondClass_Standard BondClass = iota
	BondClass_LEB8
	BondClass_LEB16
)

var (
	leb8Commission  = decimal.RequireFromString("0.14")
	leb16Commission = decimal.RequireFromString("0.15")

	two  = decimal.NewFromInt(2)
	four = decimal.NewFromInt(4)
)

// parseBondType truncates numeric bond types toward zero, so "8.0" and "8.9"
// are both 8.
func parseBondType(bondType string) (int64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(bondType), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

// ClassifyBond maps bond types in [8,15) to LEB8 and [16,17) to LEB16.
// Everything else, including unparsable values, is a standard validator.
func ClassifyBond(bondType string) BondClass {
	bt, ok := parseBondType(bondType)
	if !ok {
		return BondClass_Standard
	}
	switch {
	case bt >= 8 && bt < 15:
		return BondClass_LEB8
	case bt >= 16 && bt < 17:
		return BondClass_LEB16
	}
	return BondClass_Standard
}

func (c BondClass) Label() string {
	switch c {
	case BondClass_LEB8:
		return "8 ETH"
	case BondClass_LEB16:
		return "16 ETH"
	}
	return "32 ETH"
}

// InvestmentEth is the operator capital behind one validator of the class.
func (c BondClass) InvestmentEth() int64 {
	switch c {
	case BondClass_LEB8:
		return 8
	case BondClass_LEB16:
		return 16
	}
	return 32
}

func BondLabel(bondType string) string {
	return ClassifyBond(bondType).Label()
}

func floorDiv(amount decimal.Decimal, d decimal.Decimal) decimal.Decimal {
	return amount.Div(d).Floor()
}

// AdjustReward returns the operator's share of a reward. For LEB8 the bonded
// quarter is kept whole plus 14% of the borrowed rest; for LEB16 the bonded
// half plus 15% of the rest. Standard validators keep everything.
func AdjustReward(amount decimal.Decimal, bondType string) decimal.Decimal {
	switch ClassifyBond(bondType) {
	case BondClass_LEB8:
		bonded := floorDiv(amount, four)
		borrowed := amount.Sub(bonded)
		return bonded.Add(borrowed.Mul(leb8Commission)).Floor()
	case BondClass_LEB16:
		bonded := floorDiv(amount, two)
		borrowed := amount.Sub(bonded)
		return bonded.Add(borrowed.Mul(leb16Commission)).Floor()
	}
	return amount
}

// BondedPrincipal returns the operator's own share of returned principal.
func BondedPrincipal(amount decimal.Decimal, bondType string) decimal.Decimal {
	switch ClassifyBond(bondType) {
	case BondClass_LEB8:
		return floorDiv(amount, four)
	case BondClass_LEB16:
		return floorDiv(amount, two)
	}
	return amount
}
