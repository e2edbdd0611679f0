package ledger

import (
	"strings"

	"github.com/li-blockchain/rewards-collector/pkg/rewardTypes"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrSchemaMismatch = errors.New("ledger schema mismatch")

// ledgerRow is the on-disk layout. Field order is the column order.
// Amount is an INT64 column: gwei for withdrawals, wei for proposals.
type ledgerRow struct {
	RecordType      string  `parquet:"record_type"`
	ValidatorIndex  int64   `parquet:"validator_index"`
	Amount          int64   `parquet:"amount"`
	Epoch           int64   `parquet:"epoch"`
	Datetime        *int64  `parquet:"datetime"`
	ValidatorType   string  `parquet:"validator_type"`
	Node            string  `parquet:"node"`
	Minipool        string  `parquet:"minipool"`
	MevSource       *string `parquet:"mev_source"`
	ExecBlockNumber *int64  `parquet:"exec_block_number"`
	IsExit          bool    `parquet:"is_exit"`
}

var ledgerSchema = parquet.SchemaOf(ledgerRow{})

// checkColumns verifies that every ledger column exists in schema with the
// same physical type. Decoding a file whose types differ panics inside
// parquet-go, so this runs before any read.
func checkColumns(schema *parquet.Schema) error {
	for _, path := range ledgerSchema.Columns() {
		name := strings.Join(path, ".")
		want, _ := ledgerSchema.Lookup(path...)
		got, ok := schema.Lookup(path...)
		if !ok {
			return errors.Wrapf(ErrSchemaMismatch, "missing column '%s'", name)
		}
		if got.Node.Type().Kind() != want.Node.Type().Kind() {
			return errors.Wrapf(ErrSchemaMismatch, "column '%s' is %s, expected %s",
				name, got.Node.Type().Kind(), want.Node.Type().Kind())
		}
	}
	return nil
}

func rowFromEvent(e *rewardTypes.RewardEvent) (ledgerRow, error) {
	if !e.Amount.IsInteger() || !e.Amount.BigInt().IsInt64() {
		return ledgerRow{}, errors.Errorf("amount %s of %s does not fit the int64 amount column", e.Amount.String(), e.Key().String())
	}
	row := ledgerRow{
		RecordType:     string(e.Kind),
		ValidatorIndex: int64(e.ValidatorIndex),
		Amount:         e.Amount.IntPart(),
		Epoch:          int64(e.Epoch),
		Datetime:       e.Timestamp,
		ValidatorType:  e.BondType,
		Node:           e.Node,
		Minipool:       e.PoolId,
		IsExit:         e.IsExit(),
	}
	if e.Kind == rewardTypes.Kind_Proposal && e.Proposal != nil {
		mev := e.Proposal.MevSource
		row.MevSource = &mev
		if e.Proposal.ExecBlockNumber != nil {
			n := int64(*e.Proposal.ExecBlockNumber)
			row.ExecBlockNumber = &n
		}
	}
	return row, nil
}

func (r ledgerRow) toEvent() (*rewardTypes.RewardEvent, error) {
	kind, err := rewardTypes.ParseKind(r.RecordType)
	if err != nil {
		return nil, err
	}
	amount := decimal.NewFromInt(r.Amount)
	if r.ValidatorIndex < 0 || r.Epoch < 0 {
		return nil, errors.Errorf("negative validator index or epoch in row %d/%d", r.Epoch, r.ValidatorIndex)
	}

	var e *rewardTypes.RewardEvent
	switch kind {
	case rewardTypes.Kind_Proposal:
		detail := rewardTypes.ProposalDetail{}
		if r.MevSource != nil {
			detail.MevSource = *r.MevSource
		}
		if r.ExecBlockNumber != nil {
			n := uint64(*r.ExecBlockNumber)
			detail.ExecBlockNumber = &n
		}
		e = rewardTypes.NewProposalEvent(uint64(r.ValidatorIndex), amount, uint64(r.Epoch), r.Datetime, detail)
	default:
		e = rewardTypes.NewWithdrawalEvent(uint64(r.ValidatorIndex), amount, uint64(r.Epoch), r.Datetime, r.IsExit)
	}
	return e.WithValidator(r.ValidatorType, r.Node, r.Minipool), nil
}
