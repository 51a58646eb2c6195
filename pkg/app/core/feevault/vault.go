// Package feevault tracks collected trading fees and per-user claimable
// balances. Fee tokens themselves stay in the venue escrow pool on the
// TokenLedger; the vault is the claims ledger over that pool.
package feevault

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/errs"
	"github.com/venuelabs/venue/pkg/app/core/ledger"
)

// Recipient is one share of a fee distribution. Shares are whole
// percentages and must sum to exactly 100 across a distribution.
type Recipient struct {
	User  common.Address `json:"user"`
	Share int64          `json:"share"`
}

// Totals is the vault's scalar state, exposed for persistence and audit.
type Totals struct {
	Collected int64 `json:"collected"`
	Withdrawn int64 `json:"withdrawn"`
	Pending   int64 `json:"pending"`
}

// Vault accrues trading fees, distributes the pending pool pro rata to
// governance-chosen recipients, and pays out withdrawals through the
// TokenLedger.
//
// Invariant: sum of claimable balances ≤ Collected − Withdrawn.
type Vault struct {
	mu sync.RWMutex

	ledger ledger.TokenLedger

	// bookAcct is the venue account the order book accrues fees under;
	// authority is the governance account. Only these two may AddFees.
	bookAcct  common.Address
	authority common.Address

	// distributor is the governance-authorized caller of DistributeFees.
	distributor common.Address

	collected int64
	withdrawn int64
	pending   int64
	accounts  map[common.Address]int64
}

func NewVault(l ledger.TokenLedger, bookAcct, authority, distributor common.Address) *Vault {
	return &Vault{
		ledger:      l,
		bookAcct:    bookAcct,
		authority:   authority,
		distributor: distributor,
		accounts:    make(map[common.Address]int64),
	}
}

// CreditTradeFee accrues a fee collected by the matching engine. The
// order book calls this only after the fill's settlement committed, so
// it cannot fail; non-positive amounts are ignored.
func (v *Vault) CreditTradeFee(amount int64) {
	if amount <= 0 {
		return
	}
	v.mu.Lock()
	v.collected += amount
	v.pending += amount
	v.mu.Unlock()
}

// AddFees accrues externally escrowed fees. Only the venue's own
// account (trade-fee path) or the governance authority may call it.
func (v *Vault) AddFees(caller common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: fee amount %d", errs.ErrInvalidAmount, amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.bookAcct && caller != v.authority {
		return fmt.Errorf("%w: %s may not add fees", errs.ErrUnauthorized, caller.Hex())
	}
	v.collected += amount
	v.pending += amount
	return nil
}

// DistributeFees splits the pending pool across recipients whose shares
// must sum to exactly 100. Allocations floor; the flooring remainder
// stays in the pending pool. Only the authorized distributor may call.
func (v *Vault) DistributeFees(caller common.Address, recipients []Recipient) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.distributor {
		return fmt.Errorf("%w: %s is not the fee distributor", errs.ErrUnauthorized, caller.Hex())
	}

	var sum int64
	for _, r := range recipients {
		if r.Share <= 0 {
			return fmt.Errorf("%w: share %d for %s", errs.ErrInvalidAmount, r.Share, r.User.Hex())
		}
		sum += r.Share
	}
	if sum != 100 {
		return fmt.Errorf("%w: shares sum to %d, want 100", errs.ErrSharesMismatch, sum)
	}

	var distributed int64
	for _, r := range recipients {
		alloc := v.pending * r.Share / 100
		v.accounts[r.User] += alloc
		distributed += alloc
	}
	v.pending -= distributed
	return nil
}

// WithdrawFees pays out from the caller's claimable balance through the
// TokenLedger. The debit and the transfer commit together; a failed
// transfer leaves the balance untouched.
func (v *Vault) WithdrawFees(caller common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdraw %d", errs.ErrInvalidAmount, amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.accounts[caller] < amount {
		return fmt.Errorf("%w: claimable %d, want %d", errs.ErrInsufficientBalance, v.accounts[caller], amount)
	}

	batch := v.ledger.Batch()
	if err := batch.Transfer(caller, amount); err != nil {
		return err
	}
	batch.Commit()

	v.accounts[caller] -= amount
	v.withdrawn += amount
	return nil
}

// FeeBalance returns the user's claimable balance.
func (v *Vault) FeeBalance(user common.Address) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.accounts[user]
}

// TotalFees returns the lifetime total of collected fees.
func (v *Vault) TotalFees() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.collected
}

// GetTotals returns the vault's scalar state.
func (v *Vault) GetTotals() Totals {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Totals{Collected: v.collected, Withdrawn: v.withdrawn, Pending: v.pending}
}

// Distributor returns the authorized distributor account.
func (v *Vault) Distributor() common.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.distributor
}

// SetDistributor updates the governance-authorized distributor.
func (v *Vault) SetDistributor(addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero distributor address", errs.ErrInvalidAmount)
	}
	v.mu.Lock()
	v.distributor = addr
	v.mu.Unlock()
	return nil
}

// Accounts returns a snapshot of all claimable balances, for
// persistence and audit.
func (v *Vault) Accounts() map[common.Address]int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[common.Address]int64, len(v.accounts))
	for user, bal := range v.accounts {
		out[user] = bal
	}
	return out
}

// Restore reloads persisted vault state on startup.
func (v *Vault) Restore(t Totals, accounts map[common.Address]int64, distributor common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.collected = t.Collected
	v.withdrawn = t.Withdrawn
	v.pending = t.Pending
	if distributor != (common.Address{}) {
		v.distributor = distributor
	}
	for user, bal := range accounts {
		v.accounts[user] = bal
	}
}
