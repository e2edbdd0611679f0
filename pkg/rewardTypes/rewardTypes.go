// Package rewardTypes defines the reward events stored in the ledger.
package rewardTypes

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	Kind_Proposal   Kind = "proposal"
	Kind_Withdrawal Kind = "withdrawal"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Kind_Proposal, Kind_Withdrawal:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown record type '%s'", s)
}

// ProposalDetail is set only on proposal events.
type ProposalDetail struct {
	// Relay tag of the block, empty for locally built blocks.
	MevSource       string
	ExecBlockNumber *uint64
}

// WithdrawalDetail is set only on withdrawal events.
type WithdrawalDetail struct {
	IsExit bool
}

// RewardEvent is a single ledger record. Exactly one of Proposal or
// Withdrawal is set, matching Kind.
//
// Amount is an integer in wei for proposals and gwei for withdrawals.
type RewardEvent struct {
	Kind           Kind
	ValidatorIndex uint64
	Amount         decimal.Decimal
	Epoch          uint64
	Timestamp      *int64

	BondType string
	Node     string
	PoolId   string

	Proposal   *ProposalDetail
	Withdrawal *WithdrawalDetail
}

func NewProposalEvent(validatorIndex uint64, amountWei decimal.Decimal, epoch uint64, timestamp *int64, detail ProposalDetail) *RewardEvent {
	return &RewardEvent{
		Kind:           Kind_Proposal,
		ValidatorIndex: validatorIndex,
		Amount:         amountWei,
		Epoch:          epoch,
		Timestamp:      timestamp,
		Proposal:       &detail,
	}
}

func NewWithdrawalEvent(validatorIndex uint64, amountGwei decimal.Decimal, epoch uint64, timestamp *int64, isExit bool) *RewardEvent {
	return &RewardEvent{
		Kind:           Kind_Withdrawal,
		ValidatorIndex: validatorIndex,
		Amount:         amountGwei,
		Epoch:          epoch,
		Timestamp:      timestamp,
		Withdrawal:     &WithdrawalDetail{IsExit: isExit},
	}
}

// EventKey is the identity of an event in the ledger.
type EventKey struct {
	Epoch          uint64
	ValidatorIndex uint64
	Kind           Kind
	Amount         string
}

func (e *RewardEvent) Key() EventKey {
	return EventKey{
		Epoch:          e.Epoch,
		ValidatorIndex: e.ValidatorIndex,
		Kind:           e.Kind,
		Amount:         e.Amount.String(),
	}
}

func (k EventKey) String() string {
	return fmt.Sprintf("%d/%d/%s/%s", k.Epoch, k.ValidatorIndex, k.Kind, k.Amount)
}

// IsExit reports the stored exit flag. Proposals are never exits.
func (e *RewardEvent) IsExit() bool {
	return e.Kind == Kind_Withdrawal && e.Withdrawal != nil && e.Withdrawal.IsExit
}

func (e *RewardEvent) MevSource() string {
	if e.Proposal == nil {
		return ""
	}
	return e.Proposal.MevSource
}

// WithValidator copies registry metadata onto the event.
func (e *RewardEvent) WithValidator(bondType, node, poolId string) *RewardEvent {
	e.BondType = bondType
	e.Node = node
	e.PoolId = poolId
	return e
}
