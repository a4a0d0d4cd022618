// Package memory implements store.Store in process memory.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/withdrawal"
)

var _ store.Store = (*Store)(nil)

// Store keeps ledger state in maps guarded by one lock. Every mutation
// holds the write lock for its whole duration, which makes it atomic.
type Store struct {
	mu     sync.RWMutex
	closed bool

	totals        map[common.Address]*big.Int
	funders       []common.Address
	contributions []*contribution.Contribution
	withdrawals   []*withdrawal.Withdrawal
	deployment    *deployment.Deployment
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		totals: make(map[common.Address]*big.Int),
	}
}

// ==================== Contribution Store ====================

func (s *Store) RecordContribution(_ context.Context, c *contribution.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fundme.ErrStoreClosed
	}

	total, ok := s.totals[c.Contributor]
	if !ok {
		total = new(big.Int)
		s.totals[c.Contributor] = total
	}
	total.Add(total, c.Value)

	c.Position = len(s.funders)
	s.funders = append(s.funders, c.Contributor)
	s.contributions = append(s.contributions, cloneContribution(c))
	return nil
}

func (s *Store) ContributedAmount(_ context.Context, addr common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if total, ok := s.totals[addr]; ok {
		return new(big.Int).Set(total), nil
	}
	return new(big.Int), nil
}

func (s *Store) FunderAt(_ context.Context, position int) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if position < 0 || position >= len(s.funders) {
		return common.Address{}, fmt.Errorf("%w: position %d, %d funders",
			fundme.ErrIndexOutOfRange, position, len(s.funders))
	}
	return s.funders[position], nil
}

func (s *Store) FunderCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.funders), nil
}

func (s *Store) Balance(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceLocked(), nil
}

func (s *Store) balanceLocked() *big.Int {
	sum := new(big.Int)
	for _, total := range s.totals {
		sum.Add(sum, total)
	}
	return sum
}

func (s *Store) ListContributions(_ context.Context, opts contribution.ListOpts) ([]*contribution.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contribution.Contribution, 0, len(s.contributions))
	for _, c := range s.contributions {
		if opts.Contributor != nil && c.Contributor != *opts.Contributor {
			continue
		}
		result = append(result, cloneContribution(c))
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ==================== Withdrawal Store ====================

func (s *Store) Drain(ctx context.Context, w *withdrawal.Withdrawal, pay withdrawal.PayoutFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fundme.ErrStoreClosed
	}

	amount := s.balanceLocked()
	distinct := make(map[common.Address]struct{}, len(s.funders))
	for _, f := range s.funders {
		distinct[f] = struct{}{}
	}

	// State is only touched after the payout succeeds.
	if err := pay(ctx, new(big.Int).Set(amount)); err != nil {
		return err
	}

	for addr := range distinct {
		s.totals[addr] = new(big.Int)
	}
	w.Amount = amount
	w.Funders = len(s.funders)
	w.Contributors = len(distinct)
	s.funders = nil
	s.withdrawals = append(s.withdrawals, cloneWithdrawal(w))
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*withdrawal.Withdrawal, 0, len(s.withdrawals))
	for _, w := range s.withdrawals {
		result = append(result, cloneWithdrawal(w))
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ==================== Deployment Store ====================

func (s *Store) GetDeployment(_ context.Context) (*deployment.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.deployment == nil {
		return nil, fundme.ErrDeploymentNotFound
	}
	d := *s.deployment
	d.MinimumUSD = new(big.Int).Set(s.deployment.MinimumUSD)
	return &d, nil
}

func (s *Store) CreateDeployment(_ context.Context, d *deployment.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deployment != nil {
		return fmt.Errorf("%w: %s already recorded", fundme.ErrDeploymentMismatch, s.deployment.ID)
	}
	cp := *d
	cp.MinimumUSD = new(big.Int).Set(d.MinimumUSD)
	s.deployment = &cp
	return nil
}

// ==================== Core ====================

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fundme.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Reads keep working.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneContribution(c *contribution.Contribution) *contribution.Contribution {
	cp := *c
	cp.Value = new(big.Int).Set(c.Value)
	if c.ReferenceValue != nil {
		cp.ReferenceValue = new(big.Int).Set(c.ReferenceValue)
	}
	return &cp
}

func cloneWithdrawal(w *withdrawal.Withdrawal) *withdrawal.Withdrawal {
	cp := *w
	cp.Amount = new(big.Int).Set(w.Amount)
	return &cp
}

func paginate[T any](items []T, offset, limit int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
