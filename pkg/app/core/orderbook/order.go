package orderbook

import "github.com/ethereum/go-ethereum/common"

// Side is the direction of an order.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of an order.
type Status int8

const (
	Open Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is a buy or sell of TokenX against TokenY at the implied limit
// price AmountY/AmountX. Orders are never deleted; terminal orders stay
// in the book's table for lookup.
type Order struct {
	ID      uint64         `json:"id"`
	Trader  common.Address `json:"trader"`
	TokenX  string         `json:"tokenX"`
	TokenY  string         `json:"tokenY"`
	AmountX int64          `json:"amountX"`
	AmountY int64          `json:"amountY"`
	Side    Side           `json:"side"`
	Status  Status         `json:"status"`

	// RemainingX decrements as fills occur; 0 means fully filled.
	RemainingX int64 `json:"remainingX"`

	// EscrowLeft is what the ledger still holds for this order:
	// TokenX for sells, TokenY for buys. Returned on cancellation,
	// consumed by fills.
	EscrowLeft int64 `json:"escrowLeft"`

	// CreatedAt is the block height at submission.
	CreatedAt int64 `json:"createdAt"`
}

// EscrowAsset is the asset the trader escrowed when placing the order.
func (o *Order) EscrowAsset() string {
	if o.Side == Sell {
		return o.TokenX
	}
	return o.TokenY
}

// IsOpen reports whether the order can still fill or be cancelled.
func (o *Order) IsOpen() bool {
	return o.Status == Open || o.Status == PartiallyFilled
}
