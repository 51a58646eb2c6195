package venue

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/errs"
	"github.com/venuelabs/venue/pkg/app/core/feevault"
	"github.com/venuelabs/venue/pkg/app/core/gov"
	"github.com/venuelabs/venue/pkg/app/core/orderbook"
	"github.com/venuelabs/venue/pkg/util"
)

var (
	venueAcct   = common.HexToAddress("0x00000000000000000000000000000000000f3e01")
	authority   = common.HexToAddress("0x00000000000000000000000000000000000a0701")
	distributor = common.HexToAddress("0x00000000000000000000000000000000000d1501")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

func newTestApp(t *testing.T, feeBps int64) (*App, *util.ChainClock) {
	t.Helper()
	clock := util.NewChainClock(0)
	app := NewApp(Config{
		VenueAccount:  venueAcct,
		Authority:     authority,
		Distributor:   distributor,
		FeeAsset:      "HYPL",
		TradingFeeBps: feeBps,
	}, clock, nil)
	return app, clock
}

// TestTradeLifecycle walks the whole venue: deposit, trade, fee
// accrual, governance fee change, distribution, and withdrawal.
func TestTradeLifecycle(t *testing.T) {
	app, clock := newTestApp(t, 100) // 1%
	app.Deposit(bob, "HYPL", 10000)
	app.Deposit(alice, "USDC", 50000)

	var fills []orderbook.Fill
	app.OnFill = func(f orderbook.Fill) { fills = append(fills, f) }

	sellID, err := app.CreateOrder(bob, "HYPL", "USDC", 10000, 50000, orderbook.Sell)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	buyID, err := app.CreateOrder(alice, "HYPL", "USDC", 10000, 50000, orderbook.Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if len(fills) != 1 {
		t.Fatalf("OnFill fired %d times, want 1", len(fills))
	}
	if fills[0].TakerID != buyID || fills[0].MakerID != sellID || fills[0].Fee != 100 {
		t.Errorf("fill = %+v, want taker %d maker %d fee 100", fills[0], buyID, sellID)
	}

	if got := app.Ledger().Balance(alice, "HYPL"); got != 9900 {
		t.Errorf("alice HYPL = %d, want 9900", got)
	}
	if got := app.Ledger().Balance(bob, "USDC"); got != 50000 {
		t.Errorf("bob USDC = %d, want 50000", got)
	}
	if got := app.TotalFees(); got != 100 {
		t.Errorf("total fees = %d, want 100", got)
	}
	// Collected fees sit in the escrow pool in the fee asset.
	if got := app.Ledger().VenueBalance("HYPL"); got != 100 {
		t.Errorf("pool HYPL = %d, want 100", got)
	}

	// Governance halves the trading fee.
	propID, err := app.CreateProposal(alice, "fee to 0.5%",
		gov.Action{Kind: gov.ActionSetFeeRate, FeeBps: 50}, 10)
	if err != nil {
		t.Fatalf("proposal: %v", err)
	}
	if err := app.Vote(propID, alice, 100, true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	clock.Advance(10)
	if err := app.EndProposal(propID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := app.FeeBps(); got != 50 {
		t.Errorf("fee after governance = %d bps, want 50", got)
	}

	// Distribute and withdraw the collected fees.
	if err := app.DistributeFees(distributor, []feevault.Recipient{
		{User: alice, Share: 50}, {User: bob, Share: 50},
	}); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := app.FeeBalance(alice); got != 50 {
		t.Errorf("alice claimable = %d, want 50", got)
	}
	if err := app.WithdrawFees(alice, 50); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := app.Ledger().Balance(alice, "HYPL"); got != 9950 {
		t.Errorf("alice HYPL after withdraw = %d, want 9950", got)
	}
	if got := app.Ledger().VenueBalance("HYPL"); got != 50 {
		t.Errorf("pool HYPL after withdraw = %d, want 50", got)
	}
}

func TestGovernanceSetDistributor(t *testing.T) {
	app, clock := newTestApp(t, 0)

	propID, _ := app.CreateProposal(alice, "new distributor",
		gov.Action{Kind: gov.ActionSetDistributor, Account: bob}, 5)
	app.Vote(propID, alice, 10, true)
	clock.Advance(5)
	if err := app.EndProposal(propID); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Credit something distributable through the authority path.
	if err := app.AddFees(authority, 100); err != nil {
		t.Fatalf("add fees: %v", err)
	}
	if err := app.DistributeFees(distributor, []feevault.Recipient{{User: alice, Share: 100}}); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("old distributor err = %v, want ErrUnauthorized", err)
	}
	if err := app.DistributeFees(bob, []feevault.Recipient{{User: alice, Share: 100}}); err != nil {
		t.Errorf("new distributor: %v", err)
	}
}

func TestGovernanceCreditFees(t *testing.T) {
	app, clock := newTestApp(t, 0)

	propID, _ := app.CreateProposal(alice, "treasury top-up",
		gov.Action{Kind: gov.ActionCreditFees, Amount: 250}, 5)
	app.Vote(propID, alice, 10, true)
	clock.Advance(5)
	if err := app.EndProposal(propID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := app.TotalFees(); got != 250 {
		t.Errorf("total fees = %d, want 250", got)
	}
}

func TestGovernanceInvalidActionKeepsProposalActive(t *testing.T) {
	app, clock := newTestApp(t, 30)

	propID, _ := app.CreateProposal(alice, "fee out of range",
		gov.Action{Kind: gov.ActionSetFeeRate, FeeBps: 20000}, 5)
	app.Vote(propID, alice, 10, true)
	clock.Advance(5)

	if err := app.EndProposal(propID); !errors.Is(err, errs.ErrActionExecutionFailed) {
		t.Fatalf("err = %v, want ErrActionExecutionFailed", err)
	}
	p, _ := app.GetProposal(propID)
	if p.Status != gov.Active {
		t.Errorf("status = %s, want active", p.Status)
	}
	if got := app.FeeBps(); got != 30 {
		t.Errorf("fee = %d, want 30 unchanged", got)
	}
}

func TestCancelReturnsEscrow(t *testing.T) {
	app, _ := newTestApp(t, 0)
	app.Deposit(alice, "USDC", 500)

	id, err := app.CreateOrder(alice, "HYPL", "USDC", 100, 500, orderbook.Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := app.CancelOrder(alice, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := app.Ledger().Balance(alice, "USDC"); got != 500 {
		t.Errorf("alice USDC = %d, want 500", got)
	}
	o, _ := app.GetOrder(id)
	if o.Status != orderbook.Cancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}
}

func TestRestoreRebuildsState(t *testing.T) {
	app, clock := newTestApp(t, 100)
	app.Deposit(bob, "HYPL", 100)
	app.Deposit(alice, "USDC", 500)

	sellID, _ := app.CreateOrder(bob, "HYPL", "USDC", 100, 500, orderbook.Sell)
	propID, _ := app.CreateProposal(alice, "persisted", gov.Action{}, 50)
	app.Vote(propID, bob, 10, true)

	// Snapshot and rebuild as a fresh app sharing the same clock.
	var orders []orderbook.Order
	o, _ := app.GetOrder(sellID)
	orders = append(orders, o)
	p, _ := app.GetProposal(propID)

	app2 := NewApp(Config{
		VenueAccount:  venueAcct,
		Authority:     authority,
		Distributor:   distributor,
		FeeAsset:      "HYPL",
		TradingFeeBps: 100,
	}, clock, nil)
	err := app2.Restore(orders, feevault.Totals{Collected: 7, Pending: 7}, nil,
		common.Address{}, 50, []gov.Proposal{p}, []gov.VoteKey{{ProposalID: propID, Voter: bob}})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if app2.OrderCount() != 1 || app2.ProposalCount() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", app2.OrderCount(), app2.ProposalCount())
	}
	if got := app2.FeeBps(); got != 50 {
		t.Errorf("restored fee = %d, want 50", got)
	}
	if got := app2.TotalFees(); got != 7 {
		t.Errorf("restored total fees = %d, want 7", got)
	}
	if err := app2.Vote(propID, bob, 10, true); !errors.Is(err, errs.ErrAlreadyVoted) {
		t.Errorf("restored vote err = %v, want ErrAlreadyVoted", err)
	}

	// The restored resting order still matches.
	app2.Deposit(venueAcct, "HYPL", 100) // escrow pool backing the restored order
	app2.Deposit(alice, "USDC", 500)
	_, err = app2.CreateOrder(alice, "HYPL", "USDC", 100, 500, orderbook.Buy)
	if err != nil {
		t.Fatalf("buy against restored book: %v", err)
	}
	got, _ := app2.GetOrder(sellID)
	if got.Status != orderbook.Filled {
		t.Errorf("restored maker status = %s, want filled", got.Status)
	}
}
