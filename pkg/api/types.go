package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// CreateOrderRequest is the payload for POST /api/v1/orders.
// The caller's address stands in for host-supplied identity; the venue
// core does not verify signatures.
type CreateOrderRequest struct {
	Trader  string `json:"trader"`
	TokenX  string `json:"tokenX"`
	TokenY  string `json:"tokenY"`
	AmountX int64  `json:"amountX"`
	AmountY int64  `json:"amountY"`
	Side    string `json:"side"` // "buy" or "sell"
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel.
type CancelOrderRequest struct {
	Caller  string `json:"caller"`
	OrderID uint64 `json:"orderId"`
}

// AddFeesRequest is the payload for POST /api/v1/fees/add. Only the
// venue account or the governance authority may accrue fees this way.
type AddFeesRequest struct {
	Caller string `json:"caller"`
	Amount int64  `json:"amount"`
}

// WithdrawFeesRequest is the payload for POST /api/v1/fees/withdraw.
type WithdrawFeesRequest struct {
	Caller string `json:"caller"`
	Amount int64  `json:"amount"`
}

// FeeRecipient is one share of a distribution request.
type FeeRecipient struct {
	User  string `json:"user"`
	Share int64  `json:"share"`
}

// DistributeFeesRequest is the payload for POST /api/v1/fees/distribute.
type DistributeFeesRequest struct {
	Caller     string         `json:"caller"`
	Recipients []FeeRecipient `json:"recipients"`
}

// CreateProposalRequest is the payload for POST /api/v1/proposals.
type CreateProposalRequest struct {
	Proposer    string `json:"proposer"`
	Description string `json:"description"`
	Duration    int64  `json:"duration"` // voting period in blocks
	ActionKind  string `json:"actionKind,omitempty"`
	FeeBps      int64  `json:"feeBps,omitempty"`
	Account     string `json:"account,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
}

// VoteRequest is the payload for POST /api/v1/proposals/{id}/vote.
type VoteRequest struct {
	Voter   string `json:"voter"`
	Amount  int64  `json:"amount"`
	VoteFor bool   `json:"voteFor"`
}

// ==============================
// REST Response Types
// ==============================

// OrderInfo represents an order record.
type OrderInfo struct {
	ID         uint64 `json:"id"`
	Trader     string `json:"trader"`
	TokenX     string `json:"tokenX"`
	TokenY     string `json:"tokenY"`
	AmountX    int64  `json:"amountX"`
	AmountY    int64  `json:"amountY"`
	Side       string `json:"side"`
	Status     string `json:"status"` // "open", "partially_filled", "filled", "cancelled"
	RemainingX int64  `json:"remainingX"`
	CreatedAt  int64  `json:"createdAt"` // block height
}

// ProposalInfo represents a governance proposal.
type ProposalInfo struct {
	ID           uint64 `json:"id"`
	Proposer     string `json:"proposer"`
	Description  string `json:"description"`
	VotesFor     int64  `json:"votesFor"`
	VotesAgainst int64  `json:"votesAgainst"`
	Status       string `json:"status"` // "active", "passed", "rejected"
	EndBlock     int64  `json:"endBlock"`
}

// CountResponse wraps the monotonic order/proposal counters.
type CountResponse struct {
	Count uint64 `json:"count"`
}

// FeeBalanceResponse is a user's claimable fee balance.
type FeeBalanceResponse struct {
	User    string `json:"user"`
	Balance int64  `json:"balance"`
}

// TotalFeesResponse is the lifetime collected fee total.
type TotalFeesResponse struct {
	Total int64 `json:"total"`
}

// CreateOrderResponse is the response from order submission.
type CreateOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

// CreateProposalResponse is the response from proposal submission.
type CreateProposalResponse struct {
	ProposalID uint64 `json:"proposalId"`
}

// StatusResponse acknowledges a state-changing call with no payload.
type StatusResponse struct {
	Status string `json:"status"` // "ok"
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to subscribe to channels.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["fills", "proposals"]
}

// FillUpdate is broadcast on the "fills" channel for every executed fill.
type FillUpdate struct {
	Type    string `json:"type"` // "fill"
	TakerID uint64 `json:"takerId"`
	MakerID uint64 `json:"makerId"`
	TokenX  string `json:"tokenX"`
	TokenY  string `json:"tokenY"`
	FilledX int64  `json:"filledX"`
	PaidY   int64  `json:"paidY"`
	Fee     int64  `json:"fee"`
	Height  int64  `json:"height"`
}

// ProposalUpdate is broadcast on the "proposals" channel when a
// proposal is created or reaches a terminal state.
type ProposalUpdate struct {
	Type     string `json:"type"` // "proposal"
	ID       uint64 `json:"id"`
	Status   string `json:"status"`
	EndBlock int64  `json:"endBlock"`
}
