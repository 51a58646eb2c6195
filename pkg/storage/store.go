// Package storage persists venue state in Pebble. Records are JSON
// encoded under prefixed keys; each applied operation writes its
// touched records through one atomic batch.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/feevault"
	"github.com/venuelabs/venue/pkg/app/core/gov"
	"github.com/venuelabs/venue/pkg/app/core/orderbook"
)

type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveOrders persists a set of order records atomically.
func (s *Store) SaveOrders(orders ...orderbook.Order) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, o := range orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
		}
		if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %d: %w", o.ID, err)
		}
	}
	return batch.Commit(pebble.Sync)
}

// LoadAllOrders returns every persisted order in ascending id order.
func (s *Store) LoadAllOrders() ([]orderbook.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []orderbook.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o orderbook.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order at %s: %w", iter.Key(), err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// SaveVault persists the vault's totals, claimable balances, and the
// authorized distributor in one batch.
func (s *Store) SaveVault(t feevault.Totals, accounts map[common.Address]int64, distributor common.Address) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal vault totals: %w", err)
	}
	if err := batch.Set(metaKey("vault"), data, nil); err != nil {
		return err
	}
	if err := batch.Set(metaKey("distributor"), distributor.Bytes(), nil); err != nil {
		return err
	}
	for user, bal := range accounts {
		val, err := json.Marshal(bal)
		if err != nil {
			return err
		}
		if err := batch.Set(feeAcctKey(user), val, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// LoadVault returns the persisted vault state. Missing state yields
// zero totals and an empty account map.
func (s *Store) LoadVault() (feevault.Totals, map[common.Address]int64, common.Address, error) {
	var totals feevault.Totals
	var distributor common.Address
	accounts := make(map[common.Address]int64)

	data, closer, err := s.db.Get(metaKey("vault"))
	if err == nil {
		uerr := json.Unmarshal(data, &totals)
		closer.Close()
		if uerr != nil {
			return totals, nil, distributor, fmt.Errorf("failed to unmarshal vault totals: %w", uerr)
		}
	} else if err != pebble.ErrNotFound {
		return totals, nil, distributor, err
	}

	data, closer, err = s.db.Get(metaKey("distributor"))
	if err == nil {
		distributor = common.BytesToAddress(data)
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return totals, nil, distributor, err
	}

	prefix := []byte(prefixFeeAcct)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return totals, nil, distributor, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		addrHex := string(iter.Key()[len(prefixFeeAcct):])
		if !common.IsHexAddress(addrHex) {
			continue
		}
		var bal int64
		if err := json.Unmarshal(iter.Value(), &bal); err != nil {
			return totals, nil, distributor, fmt.Errorf("failed to unmarshal fee balance at %s: %w", iter.Key(), err)
		}
		accounts[common.HexToAddress(addrHex)] = bal
	}
	return totals, accounts, distributor, nil
}

// SaveFeeBps persists the governed trading fee rate.
func (s *Store) SaveFeeBps(bps int64) error {
	data, err := json.Marshal(bps)
	if err != nil {
		return err
	}
	return s.db.Set(metaKey("feebps"), data, pebble.Sync)
}

// LoadFeeBps returns the persisted fee rate, or 0 if none was saved.
func (s *Store) LoadFeeBps() (int64, error) {
	data, closer, err := s.db.Get(metaKey("feebps"))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	var bps int64
	if err := json.Unmarshal(data, &bps); err != nil {
		return 0, fmt.Errorf("failed to unmarshal fee rate: %w", err)
	}
	return bps, nil
}

// SaveProposal persists a proposal record.
func (s *Store) SaveProposal(p gov.Proposal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal %d: %w", p.ID, err)
	}
	return s.db.Set(proposalKey(p.ID), data, pebble.Sync)
}

// LoadAllProposals returns every persisted proposal in ascending id order.
func (s *Store) LoadAllProposals() ([]gov.Proposal, error) {
	prefix := []byte(prefixProposal)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var proposals []gov.Proposal
	for iter.First(); iter.Valid(); iter.Next() {
		var p gov.Proposal
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal proposal at %s: %w", iter.Key(), err)
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}

// SaveVote persists one cast vote record.
func (s *Store) SaveVote(k gov.VoteKey) error {
	data, err := json.Marshal(k)
	if err != nil {
		return fmt.Errorf("failed to marshal vote: %w", err)
	}
	return s.db.Set(voteKey(k.ProposalID, k.Voter), data, pebble.Sync)
}

// LoadAllVotes returns every persisted vote record.
func (s *Store) LoadAllVotes() ([]gov.VoteKey, error) {
	prefix := []byte(prefixVote)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var votes []gov.VoteKey
	for iter.First(); iter.Valid(); iter.Next() {
		var k gov.VoteKey
		if err := json.Unmarshal(iter.Value(), &k); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vote at %s: %w", iter.Key(), err)
		}
		votes = append(votes, k)
	}
	return votes, nil
}
