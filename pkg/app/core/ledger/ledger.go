// Package ledger defines the token custody boundary of the venue.
//
// The venue itself never holds raw balances; it instructs a TokenLedger
// to move assets between trader accounts and the venue escrow account.
// The interface is the full custody surface the core consumes — escrow
// on order creation, release on cancellation, settlement of matched
// fills, and fee payouts.
package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/errs"
)

// Leg is one asset movement out of the venue escrow pool during
// settlement of a matched pair.
type Leg struct {
	To     common.Address
	Asset  string
	Amount int64
}

// TokenLedger moves assets between accounts and the venue escrow pool.
// All methods fail with errs.ErrInsufficientBalance when the source
// cannot cover the movement.
type TokenLedger interface {
	// Escrow moves amount of asset from the account into the venue pool.
	Escrow(from common.Address, asset string, amount int64) error
	// Release returns escrowed funds from the venue pool to the account.
	Release(to common.Address, asset string, amount int64) error
	// Settle pays out the legs of one matched fill from the venue pool.
	// All legs apply together or not at all.
	Settle(partyA, partyB common.Address, legs []Leg) error
	// Transfer pays amount of the venue fee asset from the pool to the
	// account. Used by fee withdrawal.
	Transfer(to common.Address, amount int64) error

	// Batch returns a staged view of the ledger. Staged movements are
	// validated against base balances plus earlier staged movements and
	// become visible only on Commit. Abandoning a batch discards them.
	Batch() Batch
}

// Batch stages ledger movements for one atomic operation.
type Batch interface {
	Escrow(from common.Address, asset string, amount int64) error
	Release(to common.Address, asset string, amount int64) error
	Settle(partyA, partyB common.Address, legs []Leg) error
	Transfer(to common.Address, amount int64) error
	Commit()
}

// InMemory is the reference TokenLedger backed by an in-memory balance
// table keyed by (account, asset). Escrowed funds are pooled under a
// single venue account.
type InMemory struct {
	mu        sync.RWMutex
	balances  map[common.Address]map[string]int64
	venueAcct common.Address
	feeAsset  string
}

func NewInMemory(venueAcct common.Address, feeAsset string) *InMemory {
	return &InMemory{
		balances:  make(map[common.Address]map[string]int64),
		venueAcct: venueAcct,
		feeAsset:  feeAsset,
	}
}

// Deposit credits an account directly. This is the bridge-in path used
// by the host and by tests; it is not part of the core operation surface.
func (l *InMemory) Deposit(to common.Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit %d", errs.ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, asset, amount)
	return nil
}

// Balance returns the balance of asset held by the account.
func (l *InMemory) Balance(acct common.Address, asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[acct][asset]
}

// VenueBalance returns the escrow pool balance for an asset.
func (l *InMemory) VenueBalance(asset string) int64 {
	return l.Balance(l.venueAcct, asset)
}

func (l *InMemory) credit(to common.Address, asset string, amount int64) {
	m, ok := l.balances[to]
	if !ok {
		m = make(map[string]int64)
		l.balances[to] = m
	}
	m[asset] += amount
}

func (l *InMemory) debit(from common.Address, asset string, amount int64) error {
	if l.balances[from][asset] < amount {
		return fmt.Errorf("%w: %s has %d %s, need %d",
			errs.ErrInsufficientBalance, from.Hex(), l.balances[from][asset], asset, amount)
	}
	l.balances[from][asset] -= amount
	return nil
}

func (l *InMemory) Escrow(from common.Address, asset string, amount int64) error {
	b := l.Batch()
	if err := b.Escrow(from, asset, amount); err != nil {
		return err
	}
	b.Commit()
	return nil
}

func (l *InMemory) Release(to common.Address, asset string, amount int64) error {
	b := l.Batch()
	if err := b.Release(to, asset, amount); err != nil {
		return err
	}
	b.Commit()
	return nil
}

func (l *InMemory) Settle(partyA, partyB common.Address, legs []Leg) error {
	b := l.Batch()
	if err := b.Settle(partyA, partyB, legs); err != nil {
		return err
	}
	b.Commit()
	return nil
}

func (l *InMemory) Transfer(to common.Address, amount int64) error {
	b := l.Batch()
	if err := b.Transfer(to, amount); err != nil {
		return err
	}
	b.Commit()
	return nil
}

func (l *InMemory) Batch() Batch {
	return &memBatch{ledger: l, deltas: make(map[common.Address]map[string]int64)}
}

// memBatch accumulates balance deltas without touching the base table.
// Each staged movement is validated against base+delta so a batch can
// never commit an overdraft.
type memBatch struct {
	ledger *InMemory
	deltas map[common.Address]map[string]int64
}

func (b *memBatch) available(acct common.Address, asset string) int64 {
	b.ledger.mu.RLock()
	base := b.ledger.balances[acct][asset]
	b.ledger.mu.RUnlock()
	return base + b.deltas[acct][asset]
}

func (b *memBatch) add(acct common.Address, asset string, delta int64) {
	m, ok := b.deltas[acct]
	if !ok {
		m = make(map[string]int64)
		b.deltas[acct] = m
	}
	m[asset] += delta
}

func (b *memBatch) move(from, to common.Address, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: move %d", errs.ErrInvalidAmount, amount)
	}
	if amount == 0 {
		return nil
	}
	if b.available(from, asset) < amount {
		return fmt.Errorf("%w: %s has %d %s, need %d",
			errs.ErrInsufficientBalance, from.Hex(), b.available(from, asset), asset, amount)
	}
	b.add(from, asset, -amount)
	b.add(to, asset, amount)
	return nil
}

func (b *memBatch) Escrow(from common.Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: escrow %d", errs.ErrInvalidAmount, amount)
	}
	return b.move(from, b.ledger.venueAcct, asset, amount)
}

func (b *memBatch) Release(to common.Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: release %d", errs.ErrInvalidAmount, amount)
	}
	return b.move(b.ledger.venueAcct, to, asset, amount)
}

func (b *memBatch) Settle(partyA, partyB common.Address, legs []Leg) error {
	for _, leg := range legs {
		if err := b.move(b.ledger.venueAcct, leg.To, leg.Asset, leg.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBatch) Transfer(to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer %d", errs.ErrInvalidAmount, amount)
	}
	return b.move(b.ledger.venueAcct, to, b.ledger.feeAsset, amount)
}

// Commit applies all staged deltas to the base table.
func (b *memBatch) Commit() {
	b.ledger.mu.Lock()
	defer b.ledger.mu.Unlock()
	for acct, assets := range b.deltas {
		for asset, delta := range assets {
			if delta == 0 {
				continue
			}
			b.ledger.credit(acct, asset, delta)
		}
	}
	b.deltas = make(map[common.Address]map[string]int64)
}

var _ TokenLedger = (*InMemory)(nil)
