package beaconchain

import (
	"github.com/shopspring/decimal"
)

const statusOK = "OK"

// ValidatorWithdrawal is one row of the withdrawals endpoint. Amount is gwei.
type ValidatorWithdrawal struct {
	Epoch           uint64          `json:"epoch"`
	Slot            uint64          `json:"slot"`
	BlockRoot       string          `json:"blockroot"`
	WithdrawalIndex uint64          `json:"withdrawalindex"`
	ValidatorIndex  uint64          `json:"validatorindex"`
	Address         string          `json:"address"`
	Amount          decimal.Decimal `json:"amount"`
}

type WithdrawalsResponse struct {
	Status string                 `json:"status"`
	Data   []*ValidatorWithdrawal `json:"data"`
}

type ValidatorProposal struct {
	Epoch           uint64  `json:"epoch"`
	Slot            uint64  `json:"slot"`
	Proposer        uint64  `json:"proposer"`
	Status          string  `json:"status"`
	ExecBlockNumber *uint64 `json:"exec_block_number"`
}

type ProposalsResponse struct {
	Status string               `json:"status"`
	Data   []*ValidatorProposal `json:"data"`
}

type Relay struct {
	Tag                  string `json:"tag"`
	BuilderPubkey        string `json:"builderPubkey"`
	ProducerFeeRecipient string `json:"producerFeeRecipient"`
}

type PosConsensus struct {
	Slot          uint64 `json:"slot"`
	Epoch         uint64 `json:"epoch"`
	ProposerIndex uint64 `json:"proposerIndex"`
}

// ExecutionBlock rewards are wei.
type ExecutionBlock struct {
	BlockHash      string          `json:"blockHash"`
	BlockNumber    uint64          `json:"blockNumber"`
	Timestamp      int64           `json:"timestamp"`
	BlockReward    decimal.Decimal `json:"blockReward"`
	BlockMevReward decimal.Decimal `json:"blockMevReward"`
	ProducerReward decimal.Decimal `json:"producerReward"`
	FeeRecipient   string          `json:"feeRecipient"`
	Relay          *Relay          `json:"relay"`
	PosConsensus   PosConsensus    `json:"posConsensus"`
}

type ExecutionBlockResponse struct {
	Status string            `json:"status"`
	Data   []*ExecutionBlock `json:"data"`
}

type EpochSlot struct {
	Epoch         uint64 `json:"epoch"`
	Slot          uint64 `json:"slot"`
	Proposer      uint64 `json:"proposer"`
	Status        string `json:"status"`
	ExecTimestamp *int64 `json:"exec_timestamp"`
}

type EpochSlotsResponse struct {
	Status string       `json:"status"`
	Data   []*EpochSlot `json:"data"`
}

// LastExecTimestamp returns the execution timestamp of the epoch's last slot.
func (r *EpochSlotsResponse) LastExecTimestamp() *int64 {
	if r == nil || len(r.Data) == 0 {
		return nil
	}
	return r.Data[len(r.Data)-1].ExecTimestamp
}

type finalityCheckpointsResponse struct {
	Data struct {
		Finalized struct {
			Epoch string `json:"epoch"`
			Root  string `json:"root"`
		} `json:"finalized"`
	} `json:"data"`
}

type validatorStatusesRequest struct {
	Ids []string `json:"ids"`
}

type validatorStatusesResponse struct {
	Data []struct {
		Index  string `json:"index"`
		Status string `json:"status"`
	} `json:"data"`
}

// Validator statuses reported by the beacon node.
const (
	ValidatorStatus_ExitedUnslashed    = "exited_unslashed"
	ValidatorStatus_ExitedSlashed      = "exited_slashed"
	ValidatorStatus_WithdrawalPossible = "withdrawal_possible"
	ValidatorStatus_WithdrawalDone     = "withdrawal_done"
)

// IsExitedStatus reports whether the status means the validator has exited,
// so a withdrawal returns principal rather than rewards.
func IsExitedStatus(status string) bool {
	switch status {
	case ValidatorStatus_ExitedUnslashed,
		ValidatorStatus_ExitedSlashed,
		ValidatorStatus_WithdrawalPossible,
		ValidatorStatus_WithdrawalDone:
		return true
	}
	return false
}
