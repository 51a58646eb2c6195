// Package gov implements weighted proposal voting over venue
// parameters. Proposals accumulate votes until their end block, then a
// single EndProposal call tallies them and, on success, executes the
// encoded action.
package gov

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/venue/pkg/app/core/errs"
	"github.com/venuelabs/venue/pkg/util"
)

// ProposalStatus is the lifecycle state of a proposal. Passed and
// Rejected are terminal; a terminal proposal is immutable.
type ProposalStatus int8

const (
	Active ProposalStatus = iota
	Passed
	Rejected
)

func (s ProposalStatus) String() string {
	switch s {
	case Active:
		return "active"
	case Passed:
		return "passed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Proposal is a governance change request subject to weighted voting
// until EndBlock.
type Proposal struct {
	ID           uint64         `json:"id"`
	Proposer     common.Address `json:"proposer"`
	Description  string         `json:"description"`
	Action       Action         `json:"action"`
	VotesFor     int64          `json:"votesFor"`
	VotesAgainst int64          `json:"votesAgainst"`
	Status       ProposalStatus `json:"status"`
	EndBlock     int64          `json:"endBlock"`
}

// VoteKey identifies one cast vote; the engine records them to prevent
// double voting.
type VoteKey struct {
	ProposalID uint64         `json:"proposalId"`
	Voter      common.Address `json:"voter"`
}

// Engine owns proposals and vote records.
type Engine struct {
	mu sync.RWMutex

	clock    util.Clock
	executor Executor

	proposals map[uint64]*Proposal
	voted     map[VoteKey]struct{}
	created   uint64 // proposals ever created; ids are 1..created
}

func NewEngine(clock util.Clock, executor Executor) *Engine {
	return &Engine{
		clock:     clock,
		executor:  executor,
		proposals: make(map[uint64]*Proposal),
		voted:     make(map[VoteKey]struct{}),
	}
}

// CreateProposal stores a new Active proposal ending duration blocks
// from now and returns its id.
func (e *Engine) CreateProposal(proposer common.Address, description string, action Action, duration int64) (uint64, error) {
	if duration <= 0 {
		return 0, fmt.Errorf("%w: duration %d", errs.ErrInvalidAmount, duration)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.created++
	p := &Proposal{
		ID:          e.created,
		Proposer:    proposer,
		Description: description,
		Action:      action,
		Status:      Active,
		EndBlock:    e.clock.CurrentBlock() + duration,
	}
	e.proposals[p.ID] = p
	return p.ID, nil
}

// Vote adds the voter's weight to the for or against tally. One vote
// per (proposal, voter); votes are rejected once the proposal is
// terminal or its voting period has ended.
func (e *Engine) Vote(proposalID uint64, voter common.Address, amount int64, voteFor bool) error {
	if amount <= 0 {
		return fmt.Errorf("%w: vote weight %d", errs.ErrInvalidAmount, amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.proposals[proposalID]
	if !ok {
		return fmt.Errorf("%w: proposal %d", errs.ErrNotFound, proposalID)
	}
	if p.Status != Active || e.clock.CurrentBlock() >= p.EndBlock {
		return fmt.Errorf("%w: proposal %d", errs.ErrProposalNotActive, proposalID)
	}
	key := VoteKey{ProposalID: proposalID, Voter: voter}
	if _, dup := e.voted[key]; dup {
		return fmt.Errorf("%w: %s on proposal %d", errs.ErrAlreadyVoted, voter.Hex(), proposalID)
	}

	if voteFor {
		p.VotesFor += amount
	} else {
		p.VotesAgainst += amount
	}
	e.voted[key] = struct{}{}
	return nil
}

// EndProposal tallies a proposal after its end block. A strict majority
// of votesFor passes; ties reject. On pass, the proposal's action
// executes in the same atomic step — if it fails the proposal remains
// Active and the call fails with ErrActionExecutionFailed.
func (e *Engine) EndProposal(proposalID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.proposals[proposalID]
	if !ok {
		return fmt.Errorf("%w: proposal %d", errs.ErrNotFound, proposalID)
	}
	if p.Status != Active {
		return fmt.Errorf("%w: proposal %d is %s", errs.ErrProposalNotActive, proposalID, p.Status)
	}
	if e.clock.CurrentBlock() < p.EndBlock {
		return fmt.Errorf("%w: proposal %d ends at block %d", errs.ErrVotingStillOpen, proposalID, p.EndBlock)
	}

	if p.VotesFor > p.VotesAgainst {
		if err := e.executor.ExecuteAction(p.Action); err != nil {
			return fmt.Errorf("%w: proposal %d: %v", errs.ErrActionExecutionFailed, proposalID, err)
		}
		p.Status = Passed
	} else {
		p.Status = Rejected
	}
	return nil
}

// GetProposal returns a copy of the proposal record.
func (e *Engine) GetProposal(proposalID uint64) (Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.proposals[proposalID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: proposal %d", errs.ErrNotFound, proposalID)
	}
	return *p, nil
}

// Count returns the number of proposals ever created.
func (e *Engine) Count() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.created
}

// VoteKeys returns a snapshot of all recorded votes, for persistence.
func (e *Engine) VoteKeys() []VoteKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]VoteKey, 0, len(e.voted))
	for k := range e.voted {
		out = append(out, k)
	}
	return out
}

// RestoreProposal reinserts a persisted proposal on startup.
func (e *Engine) RestoreProposal(p Proposal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := p
	e.proposals[cp.ID] = &cp
	if cp.ID > e.created {
		e.created = cp.ID
	}
}

// RestoreVote reinserts a persisted vote record on startup.
func (e *Engine) RestoreVote(k VoteKey) {
	e.mu.Lock()
	e.voted[k] = struct{}{}
	e.mu.Unlock()
}
