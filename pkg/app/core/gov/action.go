package gov

import "github.com/ethereum/go-ethereum/common"

// ActionKind selects what a passed proposal does to venue configuration.
type ActionKind int8

const (
	// ActionNone passes without side effects (signalling proposal).
	ActionNone ActionKind = iota
	// ActionSetFeeRate updates the order book's trading fee (FeeBps).
	ActionSetFeeRate
	// ActionSetDistributor authorizes a new fee distributor (Account).
	ActionSetDistributor
	// ActionCreditFees accrues Amount into the fee vault via the
	// governance authority.
	ActionCreditFees
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionSetFeeRate:
		return "set_fee_rate"
	case ActionSetDistributor:
		return "set_distributor"
	case ActionCreditFees:
		return "credit_fees"
	default:
		return "unknown"
	}
}

// Action is the parameter change a proposal executes when it passes.
type Action struct {
	Kind    ActionKind     `json:"kind"`
	FeeBps  int64          `json:"feeBps,omitempty"`
	Account common.Address `json:"account,omitempty"`
	Amount  int64          `json:"amount,omitempty"`
}

// Executor applies a passed proposal's action against venue
// configuration as one atomic step. An error leaves the proposal Active.
type Executor interface {
	ExecuteAction(a Action) error
}
