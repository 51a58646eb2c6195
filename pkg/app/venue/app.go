// Package venue wires the order book, fee vault, and governance engine
// into one application. Every public method is a single atomic state
// transition: the host serializes calls, and any failure inside a call
// leaves no partial effects.
package venue

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/errs"
	"github.com/venuelabs/venue/pkg/app/core/feevault"
	"github.com/venuelabs/venue/pkg/app/core/gov"
	"github.com/venuelabs/venue/pkg/app/core/ledger"
	"github.com/venuelabs/venue/pkg/app/core/orderbook"
	"github.com/venuelabs/venue/pkg/util"
)

// Config holds the venue's construction-time parameters. TradingFeeBps
// and the distributor are governed and may change via proposals.
type Config struct {
	VenueAccount  common.Address
	Authority     common.Address
	Distributor   common.Address
	FeeAsset      string
	TradingFeeBps int64
}

// Store persists venue state after each applied operation. A nil store
// disables persistence (tests, ephemeral nodes).
type Store interface {
	SaveOrders(orders ...orderbook.Order) error
	SaveVault(t feevault.Totals, accounts map[common.Address]int64, distributor common.Address) error
	SaveFeeBps(bps int64) error
	SaveProposal(p gov.Proposal) error
	SaveVote(k gov.VoteKey) error
}

// App owns the venue components and exposes the full operation surface.
type App struct {
	cfg    Config
	ledger *ledger.InMemory
	book   *orderbook.Book
	vault  *feevault.Vault
	gov    *gov.Engine
	clock  util.Clock
	store  Store

	// OnFill, when set, is invoked for every executed fill after the
	// operation committed. Used by the API layer to broadcast trades.
	OnFill func(f orderbook.Fill)
}

func NewApp(cfg Config, clock util.Clock, store Store) *App {
	l := ledger.NewInMemory(cfg.VenueAccount, cfg.FeeAsset)
	a := &App{
		cfg:    cfg,
		ledger: l,
		clock:  clock,
		store:  store,
	}
	a.vault = feevault.NewVault(l, cfg.VenueAccount, cfg.Authority, cfg.Distributor)
	a.book = orderbook.NewBook(l, a.vault, clock, cfg.VenueAccount, cfg.TradingFeeBps)
	a.gov = gov.NewEngine(clock, a)
	return a
}

// Ledger exposes the token ledger for the host's deposit bridge.
func (a *App) Ledger() *ledger.InMemory { return a.ledger }

// Deposit credits a trader's balance. Host bridge-in path.
func (a *App) Deposit(to common.Address, asset string, amount int64) error {
	return a.ledger.Deposit(to, asset, amount)
}

// ---- OrderBook operations ----

func (a *App) CreateOrder(trader common.Address, tokenX, tokenY string, amountX, amountY int64, side orderbook.Side) (uint64, error) {
	id, fills, err := a.book.CreateOrder(trader, tokenX, tokenY, amountX, amountY, side)
	if err != nil {
		return 0, err
	}

	if err := a.persistOrderState(id, fills); err != nil {
		return 0, err
	}
	if a.OnFill != nil {
		for _, f := range fills {
			a.OnFill(f)
		}
	}
	return id, nil
}

func (a *App) GetOrder(id uint64) (orderbook.Order, error) { return a.book.GetOrder(id) }

func (a *App) CancelOrder(caller common.Address, id uint64) error {
	if err := a.book.CancelOrder(caller, id); err != nil {
		return err
	}
	return a.persistOrderState(id, nil)
}

func (a *App) OrderCount() uint64 { return a.book.Count() }

func (a *App) FeeBps() int64 { return a.book.FeeBps() }

// ---- FeeVault operations ----

func (a *App) AddFees(caller common.Address, amount int64) error {
	if err := a.vault.AddFees(caller, amount); err != nil {
		return err
	}
	return a.persistVault()
}

func (a *App) DistributeFees(caller common.Address, recipients []feevault.Recipient) error {
	if err := a.vault.DistributeFees(caller, recipients); err != nil {
		return err
	}
	return a.persistVault()
}

func (a *App) WithdrawFees(caller common.Address, amount int64) error {
	if err := a.vault.WithdrawFees(caller, amount); err != nil {
		return err
	}
	return a.persistVault()
}

func (a *App) FeeBalance(user common.Address) int64 { return a.vault.FeeBalance(user) }

func (a *App) TotalFees() int64 { return a.vault.TotalFees() }

// ---- Governance operations ----

func (a *App) CreateProposal(proposer common.Address, description string, action gov.Action, duration int64) (uint64, error) {
	id, err := a.gov.CreateProposal(proposer, description, action, duration)
	if err != nil {
		return 0, err
	}
	return id, a.persistProposal(id)
}

func (a *App) Vote(proposalID uint64, voter common.Address, amount int64, voteFor bool) error {
	if err := a.gov.Vote(proposalID, voter, amount, voteFor); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.SaveVote(gov.VoteKey{ProposalID: proposalID, Voter: voter}); err != nil {
			return fmt.Errorf("persist vote: %w", err)
		}
	}
	return a.persistProposal(proposalID)
}

func (a *App) EndProposal(proposalID uint64) error {
	if err := a.gov.EndProposal(proposalID); err != nil {
		return err
	}
	// The action may have touched the fee rate or vault config.
	if err := a.persistVault(); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.SaveFeeBps(a.book.FeeBps()); err != nil {
			return fmt.Errorf("persist fee rate: %w", err)
		}
	}
	return a.persistProposal(proposalID)
}

func (a *App) GetProposal(proposalID uint64) (gov.Proposal, error) { return a.gov.GetProposal(proposalID) }

func (a *App) ProposalCount() uint64 { return a.gov.Count() }

// ---- Governance action execution ----

// ExecuteAction applies a passed proposal's action. Called by the
// governance engine inside EndProposal.
func (a *App) ExecuteAction(act gov.Action) error {
	switch act.Kind {
	case gov.ActionNone:
		return nil
	case gov.ActionSetFeeRate:
		return a.book.SetFeeBps(act.FeeBps)
	case gov.ActionSetDistributor:
		return a.vault.SetDistributor(act.Account)
	case gov.ActionCreditFees:
		return a.vault.AddFees(a.cfg.Authority, act.Amount)
	default:
		return fmt.Errorf("%w: unknown action kind %d", errs.ErrActionExecutionFailed, act.Kind)
	}
}

var _ gov.Executor = (*App)(nil)

// ---- Persistence ----

func (a *App) persistOrderState(id uint64, fills []orderbook.Fill) error {
	if a.store == nil {
		return nil
	}

	touched := map[uint64]struct{}{id: {}}
	for _, f := range fills {
		touched[f.MakerID] = struct{}{}
	}
	orders := make([]orderbook.Order, 0, len(touched))
	for oid := range touched {
		o, err := a.book.GetOrder(oid)
		if err != nil {
			return err
		}
		orders = append(orders, o)
	}
	if err := a.store.SaveOrders(orders...); err != nil {
		return fmt.Errorf("persist orders: %w", err)
	}
	return a.persistVault()
}

func (a *App) persistVault() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.SaveVault(a.vault.GetTotals(), a.vault.Accounts(), a.vault.Distributor()); err != nil {
		return fmt.Errorf("persist vault: %w", err)
	}
	return nil
}

func (a *App) persistProposal(id uint64) error {
	if a.store == nil {
		return nil
	}
	p, err := a.gov.GetProposal(id)
	if err != nil {
		return err
	}
	if err := a.store.SaveProposal(p); err != nil {
		return fmt.Errorf("persist proposal: %w", err)
	}
	return nil
}

// Restore reloads persisted state on startup. Orders must arrive in
// ascending id order.
func (a *App) Restore(orders []orderbook.Order, totals feevault.Totals, feeAccounts map[common.Address]int64,
	distributor common.Address, feeBps int64, proposals []gov.Proposal, votes []gov.VoteKey) error {
	for _, o := range orders {
		a.book.RestoreOrder(o)
	}
	a.vault.Restore(totals, feeAccounts, distributor)
	if feeBps > 0 {
		if err := a.book.SetFeeBps(feeBps); err != nil {
			return err
		}
	}
	for _, p := range proposals {
		a.gov.RestoreProposal(p)
	}
	for _, k := range votes {
		a.gov.RestoreVote(k)
	}
	return nil
}
