package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema.
// Design principles:
// 1. Prefix-based for range scans (all orders, all proposals).
// 2. Zero-padded numeric ids so lexicographic order equals id order —
//    restore paths depend on ascending id iteration.
// 3. Scalar state under meta: keys.

const (
	prefixOrder    = "ord:"  // order records
	prefixFeeAcct  = "fee:"  // per-user claimable fee balances
	prefixProposal = "prop:" // proposal records
	prefixVote     = "vote:" // cast vote records
	prefixMeta     = "meta:" // scalar state (vault totals, fee rate, distributor)
)

// orderKey returns the key for an order.
// Format: "ord:{id}" with the id zero-padded to 20 digits.
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// feeAcctKey returns the key for a user's claimable fee balance.
// Format: "fee:{address}"
func feeAcctKey(addr common.Address) []byte {
	return []byte(prefixFeeAcct + addr.Hex())
}

// proposalKey returns the key for a proposal.
// Format: "prop:{id}" zero-padded.
func proposalKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixProposal, id))
}

// voteKey returns the key for a cast vote.
// Format: "vote:{proposalId}:{voter}"
func voteKey(proposalID uint64, voter common.Address) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixVote, proposalID, voter.Hex()))
}

func metaKey(name string) []byte {
	return []byte(prefixMeta + name)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
