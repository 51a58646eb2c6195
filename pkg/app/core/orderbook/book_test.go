package orderbook

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/errs"
	"github.com/venuelabs/venue/pkg/app/core/ledger"
	"github.com/venuelabs/venue/pkg/util"
)

var (
	venue = common.HexToAddress("0x00000000000000000000000000000000000f3e01")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000c03")
)

type feeSinkStub struct {
	credited int64
}

func (f *feeSinkStub) CreditTradeFee(amount int64) { f.credited += amount }

func newBook(t *testing.T, feeBps int64) (*Book, *ledger.InMemory, *feeSinkStub) {
	t.Helper()
	l := ledger.NewInMemory(venue, "USDC")
	sink := &feeSinkStub{}
	return NewBook(l, sink, util.NewChainClock(0), venue, feeBps), l, sink
}

func TestCreateOrderValidation(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(alice, "USDC", 1000)

	tests := []struct {
		name             string
		tokenX, tokenY   string
		amountX, amountY int64
	}{
		{"zero amountX", "HYPL", "USDC", 0, 100},
		{"zero amountY", "HYPL", "USDC", 100, 0},
		{"negative amountX", "HYPL", "USDC", -1, 100},
		{"empty tokenX", "", "USDC", 100, 100},
		{"empty tokenY", "HYPL", "", 100, 100},
		{"same tokens", "HYPL", "HYPL", 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := b.CreateOrder(alice, tt.tokenX, tt.tokenY, tt.amountX, tt.amountY, Buy)
			if !errors.Is(err, errs.ErrInvalidAmount) {
				t.Errorf("err = %v, want ErrInvalidAmount", err)
			}
		})
	}
	if b.Count() != 0 {
		t.Errorf("count after rejected orders = %d, want 0", b.Count())
	}
}

func TestCreateOrderEscrowsCorrectAsset(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(alice, "USDC", 500)
	l.Deposit(bob, "HYPL", 100)

	// Buy escrows TokenY.
	if _, _, err := b.CreateOrder(alice, "HYPL", "USDC", 100, 500, Buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := l.Balance(alice, "USDC"); got != 0 {
		t.Errorf("alice USDC after buy = %d, want 0", got)
	}
	if got := l.VenueBalance("USDC"); got != 500 {
		t.Errorf("pool USDC = %d, want 500", got)
	}

	// Sell escrows TokenX on a different pair so it rests.
	if _, _, err := b.CreateOrder(bob, "HYPL", "DAI", 100, 500, Sell); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if got := l.Balance(bob, "HYPL"); got != 0 {
		t.Errorf("bob HYPL after sell = %d, want 0", got)
	}
}

func TestCreateOrderInsufficientBalanceAborts(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(alice, "USDC", 100)

	_, _, err := b.CreateOrder(alice, "HYPL", "USDC", 100, 500, Buy)
	if !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if b.Count() != 0 {
		t.Errorf("count = %d, want 0", b.Count())
	}
	if got := l.Balance(alice, "USDC"); got != 100 {
		t.Errorf("alice USDC = %d, want 100 untouched", got)
	}
}

func TestFullMatchSettlesAndCollectsFee(t *testing.T) {
	b, l, sink := newBook(t, 100) // 1%
	l.Deposit(bob, "HYPL", 100)
	l.Deposit(alice, "USDC", 500)

	sellID, fills, err := b.CreateOrder(bob, "HYPL", "USDC", 100, 500, Sell)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("resting sell produced %d fills", len(fills))
	}

	buyID, fills, err := b.CreateOrder(alice, "HYPL", "USDC", 100, 500, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}

	f := fills[0]
	if f.TakerID != buyID || f.MakerID != sellID {
		t.Errorf("fill ids = taker %d maker %d, want %d/%d", f.TakerID, f.MakerID, buyID, sellID)
	}
	if f.FilledX != 100 || f.PaidY != 500 || f.RefundY != 0 || f.Fee != 1 {
		t.Errorf("fill = %+v, want filledX=100 paidY=500 refundY=0 fee=1", f)
	}

	// Buyer receives filled quantity minus fee, seller receives payment.
	if got := l.Balance(alice, "HYPL"); got != 99 {
		t.Errorf("alice HYPL = %d, want 99", got)
	}
	if got := l.Balance(bob, "USDC"); got != 500 {
		t.Errorf("bob USDC = %d, want 500", got)
	}
	// The fee stays in the pool.
	if got := l.VenueBalance("HYPL"); got != 1 {
		t.Errorf("pool HYPL = %d, want 1", got)
	}
	if sink.credited != 1 {
		t.Errorf("fee sink credited = %d, want 1", sink.credited)
	}

	for _, id := range []uint64{sellID, buyID} {
		o, err := b.GetOrder(id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if o.Status != Filled || o.RemainingX != 0 || o.EscrowLeft != 0 {
			t.Errorf("order %d = %+v, want filled with nothing left", id, o)
		}
	}
}

func TestPartialFillRestsRemainder(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(bob, "HYPL", 100)
	l.Deposit(alice, "USDC", 200)

	sellID, _, err := b.CreateOrder(bob, "HYPL", "USDC", 100, 500, Sell)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	buyID, fills, err := b.CreateOrder(alice, "HYPL", "USDC", 40, 200, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(fills) != 1 || fills[0].FilledX != 40 || fills[0].PaidY != 200 {
		t.Fatalf("fills = %+v, want one fill of 40 for 200", fills)
	}

	maker, _ := b.GetOrder(sellID)
	if maker.Status != PartiallyFilled || maker.RemainingX != 60 || maker.EscrowLeft != 60 {
		t.Errorf("maker = %+v, want partially_filled remaining 60", maker)
	}
	taker, _ := b.GetOrder(buyID)
	if taker.Status != Filled {
		t.Errorf("taker status = %s, want filled", taker.Status)
	}
	if got := l.Balance(alice, "HYPL"); got != 40 {
		t.Errorf("alice HYPL = %d, want 40", got)
	}
	// The partially filled maker keeps price-time priority at its
	// original terms for the remainder.
	out := b.EscrowOutstanding()
	if out["HYPL"] != 60 {
		t.Errorf("outstanding HYPL escrow = %d, want 60", out["HYPL"])
	}
}

func TestMatchPrefersBestPriceThenTime(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(bob, "HYPL", 100)
	l.Deposit(carol, "HYPL", 200)
	l.Deposit(alice, "USDC", 500)

	// bob asks 5 USDC per HYPL, carol asks 4, carol again asks 4.
	expensive, _, _ := b.CreateOrder(bob, "HYPL", "USDC", 100, 500, Sell)
	cheapFirst, _, _ := b.CreateOrder(carol, "HYPL", "USDC", 60, 240, Sell)
	cheapSecond, _, _ := b.CreateOrder(carol, "HYPL", "USDC", 140, 560, Sell)

	_, fills, err := b.CreateOrder(alice, "HYPL", "USDC", 100, 500, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	if fills[0].MakerID != cheapFirst || fills[0].FilledX != 60 {
		t.Errorf("first fill = %+v, want maker %d filledX 60", fills[0], cheapFirst)
	}
	if fills[1].MakerID != cheapSecond || fills[1].FilledX != 40 {
		t.Errorf("second fill = %+v, want maker %d filledX 40", fills[1], cheapSecond)
	}

	untouched, _ := b.GetOrder(expensive)
	if untouched.Status != Open || untouched.RemainingX != 100 {
		t.Errorf("expensive sell = %+v, want untouched", untouched)
	}
}

func TestPriceImprovementRefundsBuyer(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(bob, "HYPL", 100)
	l.Deposit(alice, "USDC", 500)

	// Resting ask at 4; incoming bid at 5 executes at the maker's price.
	if _, _, err := b.CreateOrder(bob, "HYPL", "USDC", 100, 400, Sell); err != nil {
		t.Fatalf("sell: %v", err)
	}
	_, fills, err := b.CreateOrder(alice, "HYPL", "USDC", 100, 500, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if fills[0].PaidY != 400 || fills[0].RefundY != 100 {
		t.Errorf("fill = %+v, want paidY=400 refundY=100", fills[0])
	}

	if got := l.Balance(alice, "HYPL"); got != 100 {
		t.Errorf("alice HYPL = %d, want 100", got)
	}
	if got := l.Balance(alice, "USDC"); got != 100 {
		t.Errorf("alice USDC refund = %d, want 100", got)
	}
	if got := l.Balance(bob, "USDC"); got != 400 {
		t.Errorf("bob USDC = %d, want 400", got)
	}
	if got := l.VenueBalance("USDC"); got != 0 {
		t.Errorf("pool USDC = %d, want 0 stranded", got)
	}
}

func TestBuyerEscrowNeverStranded(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(bob, "HYPL", 3)
	l.Deposit(carol, "HYPL", 4)
	l.Deposit(alice, "USDC", 10)

	// Awkward ratios force flooring in the proportional escrow split.
	if _, _, err := b.CreateOrder(bob, "HYPL", "USDC", 3, 4, Sell); err != nil {
		t.Fatalf("sell 1: %v", err)
	}
	if _, _, err := b.CreateOrder(carol, "HYPL", "USDC", 4, 5, Sell); err != nil {
		t.Fatalf("sell 2: %v", err)
	}
	buyID, _, err := b.CreateOrder(alice, "HYPL", "USDC", 7, 10, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	o, _ := b.GetOrder(buyID)
	if o.Status != Filled || o.EscrowLeft != 0 {
		t.Fatalf("buy order = %+v, want fully filled with zero escrow", o)
	}
	// Everything escrowed either paid sellers or came back to alice.
	total := l.Balance(alice, "USDC") + l.Balance(bob, "USDC") + l.Balance(carol, "USDC")
	if total != 10 {
		t.Errorf("USDC conservation: accounts hold %d, want 10", total)
	}
	if got := l.VenueBalance("USDC"); got != 0 {
		t.Errorf("pool USDC = %d, want 0", got)
	}
}

func TestCancelOrder(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(alice, "USDC", 500)

	id, _, err := b.CreateOrder(alice, "HYPL", "USDC", 100, 500, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := b.CancelOrder(bob, id); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("foreign cancel err = %v, want ErrUnauthorized", err)
	}
	if err := b.CancelOrder(alice, 99); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing cancel err = %v, want ErrNotFound", err)
	}

	if err := b.CancelOrder(alice, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	o, _ := b.GetOrder(id)
	if o.Status != Cancelled || o.EscrowLeft != 0 {
		t.Errorf("order = %+v, want cancelled with zero escrow", o)
	}
	if got := l.Balance(alice, "USDC"); got != 500 {
		t.Errorf("alice USDC after cancel = %d, want 500", got)
	}

	if err := b.CancelOrder(alice, id); !errors.Is(err, errs.ErrOrderNotOpen) {
		t.Errorf("double cancel err = %v, want ErrOrderNotOpen", err)
	}
	// Cancellation never decrements the counter.
	if b.Count() != 1 {
		t.Errorf("count = %d, want 1", b.Count())
	}
}

func TestCancelledOrderNeverMatches(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(bob, "HYPL", 100)
	l.Deposit(alice, "USDC", 500)

	sellID, _, _ := b.CreateOrder(bob, "HYPL", "USDC", 100, 500, Sell)
	if err := b.CancelOrder(bob, sellID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	buyID, fills, err := b.CreateOrder(alice, "HYPL", "USDC", 100, 500, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("buy matched a cancelled order: %+v", fills)
	}
	o, _ := b.GetOrder(buyID)
	if o.Status != Open {
		t.Errorf("buy status = %s, want open", o.Status)
	}
}

func TestSetFeeBpsBounds(t *testing.T) {
	b, _, _ := newBook(t, 30)

	if err := b.SetFeeBps(-1); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("negative fee err = %v, want ErrInvalidAmount", err)
	}
	if err := b.SetFeeBps(10001); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("fee over 100%% err = %v, want ErrInvalidAmount", err)
	}
	if err := b.SetFeeBps(50); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if got := b.FeeBps(); got != 50 {
		t.Errorf("fee = %d, want 50", got)
	}
}

func TestRestoreOrderKeepsTimePriority(t *testing.T) {
	b, l, _ := newBook(t, 0)
	l.Deposit(alice, "USDC", 1000)

	b.RestoreOrder(Order{
		ID: 1, Trader: bob, TokenX: "HYPL", TokenY: "USDC",
		AmountX: 50, AmountY: 250, Side: Sell, Status: Open,
		RemainingX: 50, EscrowLeft: 50,
	})
	b.RestoreOrder(Order{
		ID: 2, Trader: carol, TokenX: "HYPL", TokenY: "USDC",
		AmountX: 50, AmountY: 250, Side: Sell, Status: Open,
		RemainingX: 50, EscrowLeft: 50,
	})
	l.Deposit(venue, "HYPL", 100) // escrow pool backing the restored orders

	id, fills, err := b.CreateOrder(alice, "HYPL", "USDC", 50, 250, Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if id != 3 {
		t.Errorf("next id = %d, want 3", id)
	}
	if len(fills) != 1 || fills[0].MakerID != 1 {
		t.Errorf("fills = %+v, want one fill against order 1", fills)
	}
}
