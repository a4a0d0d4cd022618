package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Development defaults for the mock aggregator: 2000.00000000 at 8 decimals.
const (
	MockDecimals = 8
	MockAnswer   = 200000000000
)

// MockAggregator is an in-process feed that mirrors MockV3Aggregator:
// every UpdateAnswer opens a new round.
type MockAggregator struct {
	mu sync.RWMutex

	address  common.Address
	decimals uint8
	now      func() time.Time
	err      error

	latestRound uint64
	answers     map[uint64]*big.Int
	updatedAt   map[uint64]time.Time
	startedAt   map[uint64]time.Time
}

// MockOption configures a MockAggregator.
type MockOption func(*MockAggregator)

// WithMockAddress sets the address the mock reports.
func WithMockAddress(addr common.Address) MockOption {
	return func(m *MockAggregator) { m.address = addr }
}

// WithMockClock overrides the clock used to stamp rounds.
func WithMockClock(now func() time.Time) MockOption {
	return func(m *MockAggregator) { m.now = now }
}

// NewMockAggregator creates a mock with the given precision and opening answer.
func NewMockAggregator(decimals uint8, initialAnswer *big.Int, opts ...MockOption) *MockAggregator {
	m := &MockAggregator{
		decimals:  decimals,
		now:       time.Now,
		answers:   make(map[uint64]*big.Int),
		updatedAt: make(map[uint64]time.Time),
		startedAt: make(map[uint64]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.UpdateAnswer(initialAnswer)
	return m
}

// NewDevelopmentMock creates a mock with MockDecimals and MockAnswer.
func NewDevelopmentMock(opts ...MockOption) *MockAggregator {
	return NewMockAggregator(MockDecimals, big.NewInt(MockAnswer), opts...)
}

// Address implements Feed.
func (m *MockAggregator) Address() common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.address
}

// Decimals implements Feed.
func (m *MockAggregator) Decimals(_ context.Context) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.decimals, nil
}

// LatestRoundData implements Feed.
func (m *MockAggregator) LatestRoundData(_ context.Context) (RoundData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return RoundData{}, m.err
	}
	return m.round(m.latestRound), nil
}

// GetRoundData returns a historical round.
func (m *MockAggregator) GetRoundData(_ context.Context, roundID uint64) (RoundData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.answers[roundID]; !ok {
		return RoundData{}, fmt.Errorf("oracle: no data for round %d", roundID)
	}
	return m.round(roundID), nil
}

// UpdateAnswer records answer as a new round stamped with the current time.
func (m *MockAggregator) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.latestRound++
	m.answers[m.latestRound] = new(big.Int).Set(answer)
	m.updatedAt[m.latestRound] = now
	m.startedAt[m.latestRound] = now
}

// UpdateRoundData overwrites a round and makes it the latest one.
func (m *MockAggregator) UpdateRoundData(roundID uint64, answer *big.Int, updatedAt, startedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestRound = roundID
	m.answers[roundID] = new(big.Int).Set(answer)
	m.updatedAt[roundID] = updatedAt
	m.startedAt[roundID] = startedAt
}

// SetError makes every subsequent read fail with err. Pass nil to recover.
func (m *MockAggregator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockAggregator) round(roundID uint64) RoundData {
	id := new(big.Int).SetUint64(roundID)
	return RoundData{
		RoundID:         id,
		Answer:          new(big.Int).Set(m.answers[roundID]),
		StartedAt:       m.startedAt[roundID],
		UpdatedAt:       m.updatedAt[roundID],
		AnsweredInRound: new(big.Int).Set(id),
	}
}
