package orderbook

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/errs"
	"github.com/venuelabs/venue/pkg/app/core/ledger"
	"github.com/venuelabs/venue/pkg/util"
)

// FeeSink receives the trading fee of every executed fill. Fees are
// credited only after the fill's settlement has committed, so the sink
// must not fail.
type FeeSink interface {
	CreditTradeFee(amount int64)
}

// Fill records one matched pair executed during a CreateOrder call.
type Fill struct {
	TakerID uint64         `json:"takerId"`
	MakerID uint64         `json:"makerId"`
	Buyer   common.Address `json:"buyer"`
	Seller  common.Address `json:"seller"`
	TokenX  string         `json:"tokenX"`
	TokenY  string         `json:"tokenY"`
	FilledX int64          `json:"filledX"`
	PaidY   int64          `json:"paidY"`   // TokenY delivered to the seller
	RefundY int64          `json:"refundY"` // TokenY returned to the buyer (price improvement + flooring)
	Fee     int64          `json:"fee"`     // TokenX retained by the venue
}

// Book owns all order records for the venue and runs the matching pass.
// Resting orders are indexed per (TokenX, TokenY) pair in submission
// order; candidate selection is price-priority then time-priority.
type Book struct {
	mu sync.RWMutex

	ledger    ledger.TokenLedger
	fees      FeeSink
	clock     util.Clock
	venueAcct common.Address

	// feeBps is the governed trading fee in basis points of FilledX.
	feeBps int64

	orders  map[uint64]*Order
	resting map[string][]uint64 // pair key -> resting order ids, submission order
	created uint64              // orders ever created; ids are 1..created
}

func NewBook(l ledger.TokenLedger, fees FeeSink, clock util.Clock, venueAcct common.Address, feeBps int64) *Book {
	return &Book{
		ledger:    l,
		fees:      fees,
		clock:     clock,
		venueAcct: venueAcct,
		feeBps:    feeBps,
		orders:    make(map[uint64]*Order),
		resting:   make(map[string][]uint64),
	}
}

func pairKey(tokenX, tokenY string) string { return tokenX + "/" + tokenY }

// priceCmp compares the implied prices AmountY/AmountX of two orders by
// cross-multiplication, avoiding any integer division or rounding.
// Returns -1, 0, or +1.
func priceCmp(a, b *Order) int {
	lhs := new(big.Int).Mul(big.NewInt(a.AmountY), big.NewInt(b.AmountX))
	rhs := new(big.Int).Mul(big.NewInt(b.AmountY), big.NewInt(a.AmountX))
	return lhs.Cmp(rhs)
}

// crossable reports whether a buy and a sell can trade: buy price ≥ sell price.
func crossable(buy, sell *Order) bool {
	return priceCmp(buy, sell) >= 0
}

// mulDiv computes floor(a*b/c) without intermediate overflow.
func mulDiv(a, b, c int64) int64 {
	out := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	out.Quo(out, big.NewInt(c))
	return out.Int64()
}

// fillPlan is one staged fill: ledger legs already validated in the
// batch, order mutations deferred until the batch commits.
type fillPlan struct {
	maker    *Order
	fill     Fill
	makerEsc int64 // escrow consumed from the maker
	takerEsc int64 // escrow consumed from the incoming order
}

// CreateOrder escrows the trader's funds, records the order, and runs
// the matching pass. The escrow, every fill settlement, and all order
// mutations commit as one unit; any failure aborts the whole call with
// no state change.
func (b *Book) CreateOrder(trader common.Address, tokenX, tokenY string, amountX, amountY int64, side Side) (uint64, []Fill, error) {
	if amountX <= 0 || amountY <= 0 {
		return 0, nil, fmt.Errorf("%w: amountX=%d amountY=%d", errs.ErrInvalidAmount, amountX, amountY)
	}
	if tokenX == "" || tokenY == "" || tokenX == tokenY {
		return 0, nil, fmt.Errorf("%w: pair %q/%q", errs.ErrInvalidAmount, tokenX, tokenY)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	incoming := &Order{
		ID:         b.created + 1,
		Trader:     trader,
		TokenX:     tokenX,
		TokenY:     tokenY,
		AmountX:    amountX,
		AmountY:    amountY,
		Side:       side,
		Status:     Open,
		RemainingX: amountX,
		CreatedAt:  b.clock.CurrentBlock(),
	}

	escrowAmt := amountX
	if side == Buy {
		escrowAmt = amountY
	}
	incoming.EscrowLeft = escrowAmt

	batch := b.ledger.Batch()
	if err := batch.Escrow(trader, incoming.EscrowAsset(), escrowAmt); err != nil {
		return 0, nil, err
	}

	plans, err := b.match(incoming, batch)
	if err != nil {
		return 0, nil, err
	}

	batch.Commit()
	b.apply(incoming, plans)

	fills := make([]Fill, len(plans))
	for i, p := range plans {
		fills[i] = p.fill
	}
	return incoming.ID, fills, nil
}

// match selects candidates in price-time priority and stages one
// settlement per matched pair. Neither the incoming order nor any maker
// is mutated here; mutations happen in apply after the batch commits.
func (b *Book) match(incoming *Order, batch ledger.Batch) ([]fillPlan, error) {
	candidates := b.candidates(incoming)

	var plans []fillPlan
	takerRem := incoming.RemainingX
	takerEsc := incoming.EscrowLeft

	for _, maker := range candidates {
		if takerRem == 0 {
			break
		}
		fillX := min64(takerRem, maker.RemainingX)

		var buyer, seller *Order
		if incoming.Side == Buy {
			buyer, seller = incoming, maker
		} else {
			buyer, seller = maker, incoming
		}

		// Execution price is the resting order's: PaidY at the maker's
		// implied ratio. The buyer's escrow is consumed proportionally
		// to the filled quantity; the final fill takes whatever is left
		// so flooring never strands escrow.
		paidY := mulDiv(fillX, maker.AmountY, maker.AmountX)

		var buyerEscLeft, buyerRem int64
		if buyer == incoming {
			buyerEscLeft, buyerRem = takerEsc, takerRem
		} else {
			buyerEscLeft, buyerRem = maker.EscrowLeft, maker.RemainingX
		}
		buyerCons := buyerEscLeft
		if fillX < buyerRem {
			buyerCons = mulDiv(buyerEscLeft, fillX, buyerRem)
		}
		if paidY > buyerCons {
			paidY = buyerCons
		}
		refundY := buyerCons - paidY

		fee := mulDiv(fillX, b.feeBps, 10000)

		legs := []ledger.Leg{
			{To: buyer.Trader, Asset: incoming.TokenX, Amount: fillX - fee},
			{To: seller.Trader, Asset: incoming.TokenY, Amount: paidY},
		}
		if refundY > 0 {
			legs = append(legs, ledger.Leg{To: buyer.Trader, Asset: incoming.TokenY, Amount: refundY})
		}
		if err := batch.Settle(buyer.Trader, seller.Trader, legs); err != nil {
			return nil, err
		}

		plan := fillPlan{
			maker: maker,
			fill: Fill{
				TakerID: incoming.ID,
				MakerID: maker.ID,
				Buyer:   buyer.Trader,
				Seller:  seller.Trader,
				TokenX:  incoming.TokenX,
				TokenY:  incoming.TokenY,
				FilledX: fillX,
				PaidY:   paidY,
				RefundY: refundY,
				Fee:     fee,
			},
		}
		if maker.Side == Sell {
			plan.makerEsc = fillX
			plan.takerEsc = buyerCons
		} else {
			plan.makerEsc = buyerCons
			plan.takerEsc = fillX
		}
		plans = append(plans, plan)

		takerRem -= fillX
		takerEsc -= plan.takerEsc
	}

	return plans, nil
}

// candidates returns the opposite side's resting, price-compatible
// orders for the incoming pair, best price first, ties broken by lower
// order id.
func (b *Book) candidates(incoming *Order) []*Order {
	var out []*Order
	for _, id := range b.resting[pairKey(incoming.TokenX, incoming.TokenY)] {
		o := b.orders[id]
		if o == nil || !o.IsOpen() || o.Side == incoming.Side {
			continue
		}
		buy, sell := incoming, o
		if incoming.Side == Sell {
			buy, sell = o, incoming
		}
		if crossable(buy, sell) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		cmp := priceCmp(out[i], out[j])
		if cmp == 0 {
			return out[i].ID < out[j].ID
		}
		if incoming.Side == Buy {
			return cmp < 0 // cheapest sell first
		}
		return cmp > 0 // highest buy first
	})
	return out
}

// apply commits the in-memory effects of a successful CreateOrder.
func (b *Book) apply(incoming *Order, plans []fillPlan) {
	b.created++
	b.orders[incoming.ID] = incoming

	for _, p := range plans {
		p.maker.RemainingX -= p.fill.FilledX
		p.maker.EscrowLeft -= p.makerEsc
		if p.maker.RemainingX == 0 {
			p.maker.Status = Filled
			b.unrest(p.maker)
		} else {
			p.maker.Status = PartiallyFilled
		}

		incoming.RemainingX -= p.fill.FilledX
		incoming.EscrowLeft -= p.takerEsc

		if p.fill.Fee > 0 {
			b.fees.CreditTradeFee(p.fill.Fee)
		}
	}

	switch {
	case incoming.RemainingX == 0:
		incoming.Status = Filled
	case incoming.RemainingX < incoming.AmountX:
		incoming.Status = PartiallyFilled
	}
	if incoming.IsOpen() {
		key := pairKey(incoming.TokenX, incoming.TokenY)
		b.resting[key] = append(b.resting[key], incoming.ID)
	}
}

func (b *Book) unrest(o *Order) {
	key := pairKey(o.TokenX, o.TokenY)
	ids := b.resting[key]
	for i, id := range ids {
		if id == o.ID {
			b.resting[key] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// CancelOrder releases the order's remaining escrow and marks it
// Cancelled. Only the order's trader may cancel.
func (b *Book) CancelOrder(caller common.Address, id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", errs.ErrNotFound, id)
	}
	if o.Trader != caller {
		return fmt.Errorf("%w: order %d belongs to %s", errs.ErrUnauthorized, id, o.Trader.Hex())
	}
	if !o.IsOpen() {
		return fmt.Errorf("%w: order %d is %s", errs.ErrOrderNotOpen, id, o.Status)
	}

	if o.EscrowLeft > 0 {
		batch := b.ledger.Batch()
		if err := batch.Release(o.Trader, o.EscrowAsset(), o.EscrowLeft); err != nil {
			return err
		}
		batch.Commit()
	}

	o.EscrowLeft = 0
	o.Status = Cancelled
	b.unrest(o)
	return nil
}

// GetOrder returns a copy of the order record.
func (b *Book) GetOrder(id uint64) (Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d", errs.ErrNotFound, id)
	}
	return *o, nil
}

// Count returns the number of orders ever created. Cancellation never
// decrements it.
func (b *Book) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.created
}

// FeeBps returns the current trading fee rate in basis points.
func (b *Book) FeeBps() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.feeBps
}

// SetFeeBps updates the governed trading fee rate.
func (b *Book) SetFeeBps(bps int64) error {
	if bps < 0 || bps > 10000 {
		return fmt.Errorf("%w: fee %d bps", errs.ErrInvalidAmount, bps)
	}
	b.mu.Lock()
	b.feeBps = bps
	b.mu.Unlock()
	return nil
}

// EscrowOutstanding sums the escrow still held for open orders, per
// asset. Used to audit the book against the ledger's escrow pool.
func (b *Book) EscrowOutstanding() map[string]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]int64)
	for _, o := range b.orders {
		if o.IsOpen() {
			out[o.EscrowAsset()] += o.EscrowLeft
		}
	}
	return out
}

// RestoreOrder reinserts a persisted order on startup. Orders must be
// restored in ascending id order so resting queues keep time priority.
func (b *Book) RestoreOrder(o Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := o
	b.orders[cp.ID] = &cp
	if cp.ID > b.created {
		b.created = cp.ID
	}
	if cp.IsOpen() {
		key := pairKey(cp.TokenX, cp.TokenY)
		b.resting[key] = append(b.resting[key], cp.ID)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
