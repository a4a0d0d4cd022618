// Package storetest holds the behaviour every store.Store must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RecordContribution", func(t *testing.T) { testRecordContribution(t, newStore(t)) })
	t.Run("FunderIndexBounds", func(t *testing.T) { testFunderIndexBounds(t, newStore(t)) })
	t.Run("ListContributions", func(t *testing.T) { testListContributions(t, newStore(t)) })
	t.Run("Drain", func(t *testing.T) { testDrain(t, newStore(t)) })
	t.Run("DrainRollback", func(t *testing.T) { testDrainRollback(t, newStore(t)) })
	t.Run("DrainEmpty", func(t *testing.T) { testDrainEmpty(t, newStore(t)) })
	t.Run("DrainDeadlineDuringPayout", func(t *testing.T) { testDrainDeadlineDuringPayout(t, newStore(t)) })
	t.Run("ConcurrentContributions", func(t *testing.T) { testConcurrentContributions(t, newStore(t)) })
	t.Run("RepeatedReads", func(t *testing.T) { testRepeatedReads(t, newStore(t)) })
	t.Run("Deployment", func(t *testing.T) { testDeployment(t, newStore(t)) })
}

func record(t *testing.T, s store.Store, from common.Address, eth string) *contribution.Contribution {
	t.Helper()
	value := types.MustParseEther(eth)
	c := &contribution.Contribution{
		ID:             id.NewContributionID(),
		Contributor:    from,
		Value:          value,
		ReferenceValue: new(big.Int).Mul(value, big.NewInt(2000)),
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.RecordContribution(context.Background(), c))
	return c
}

func requireAmount(t *testing.T, s store.Store, addr common.Address, eth string) {
	t.Helper()
	got, err := s.ContributedAmount(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, types.MustParseEther(eth).String(), got.String(), "amount for %s", addr.Hex())
}

func testRecordContribution(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := record(t, s, alice, "1")
	second := record(t, s, bob, "0.5")
	third := record(t, s, alice, "2")

	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, 2, third.Position)

	requireAmount(t, s, alice, "3")
	requireAmount(t, s, bob, "0.5")
	requireAmount(t, s, owner, "0")

	count, err := s.FunderCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for i, want := range []common.Address{alice, bob, alice} {
		got, err := s.FunderAt(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "funder %d", i)
	}

	balance, err := s.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.MustParseEther("3.5").String(), balance.String())
}

func testFunderIndexBounds(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.FunderAt(ctx, 0)
	assert.True(t, errors.Is(err, fundme.ErrIndexOutOfRange), "empty index: %v", err)

	record(t, s, alice, "1")
	_, err = s.FunderAt(ctx, 1)
	assert.True(t, errors.Is(err, fundme.ErrIndexOutOfRange), "past end: %v", err)
	_, err = s.FunderAt(ctx, -1)
	assert.True(t, errors.Is(err, fundme.ErrIndexOutOfRange), "negative: %v", err)
}

func testListContributions(t *testing.T, s store.Store) {
	ctx := context.Background()

	a1 := record(t, s, alice, "1")
	record(t, s, bob, "1")
	a2 := record(t, s, alice, "3")

	all, err := s.ListContributions(ctx, contribution.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a1.ID.String(), all[0].ID.String())
	assert.Equal(t, a1.ReferenceValue.String(), all[0].ReferenceValue.String())

	who := alice
	mine, err := s.ListContributions(ctx, contribution.ListOpts{Contributor: &who})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a2.ID.String(), mine[1].ID.String())
	assert.Equal(t, 2, mine[1].Position)

	page, err := s.ListContributions(ctx, contribution.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, bob, page[0].Contributor)
}

func testDrain(t *testing.T, s store.Store) {
	ctx := context.Background()

	record(t, s, alice, "1")
	record(t, s, bob, "1")
	record(t, s, alice, "1")

	var paid *big.Int
	w := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), Owner: owner, CreatedAt: time.Now().UTC()}
	err := s.Drain(ctx, w, func(_ context.Context, amount *big.Int) error {
		paid = amount
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, types.MustParseEther("3").String(), paid.String())
	assert.Equal(t, types.MustParseEther("3").String(), w.Amount.String())
	assert.Equal(t, 3, w.Funders)
	assert.Equal(t, 2, w.Contributors)

	requireAmount(t, s, alice, "0")
	requireAmount(t, s, bob, "0")
	count, err := s.FunderCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	balance, err := s.Balance(ctx)
	require.NoError(t, err)
	assert.Zero(t, balance.Sign())

	_, err = s.FunderAt(ctx, 0)
	assert.True(t, errors.Is(err, fundme.ErrIndexOutOfRange))

	receipts, err := s.ListWithdrawals(ctx, withdrawal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, w.ID.String(), receipts[0].ID.String())
	assert.Equal(t, owner, receipts[0].Owner)

	// Contributions after a drain start a fresh index.
	again := record(t, s, bob, "2")
	assert.Equal(t, 0, again.Position)
	requireAmount(t, s, bob, "2")
}

func testDrainRollback(t *testing.T, s store.Store) {
	ctx := context.Background()

	record(t, s, alice, "1")
	record(t, s, bob, "2")

	boom := errors.New("payout rejected")
	w := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), Owner: owner, CreatedAt: time.Now().UTC()}
	err := s.Drain(ctx, w, func(context.Context, *big.Int) error { return boom })
	require.ErrorIs(t, err, boom)

	requireAmount(t, s, alice, "1")
	requireAmount(t, s, bob, "2")
	count, err := s.FunderCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	receipts, err := s.ListWithdrawals(ctx, withdrawal.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func testDrainEmpty(t *testing.T, s store.Store) {
	ctx := context.Background()

	called := false
	w := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), Owner: owner, CreatedAt: time.Now().UTC()}
	err := s.Drain(ctx, w, func(_ context.Context, amount *big.Int) error {
		called = true
		assert.Zero(t, amount.Sign())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called, "payout should run for an empty drain")
	assert.Zero(t, w.Amount.Sign())
	assert.Zero(t, w.Funders)
}

// A deadline that expires while the payout is in flight must not undo a
// payout that completed: the owner is paid the contributed amount once.
func testDrainDeadlineDuringPayout(t *testing.T, s store.Store) {
	record(t, s, alice, "1")

	var mu sync.Mutex
	paid := new(big.Int)
	slowPay := func(_ context.Context, amount *big.Int) error {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		paid.Add(paid, amount)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	w := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), Owner: owner, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Drain(ctx, w, slowPay))
	require.Error(t, ctx.Err(), "deadline should have passed during the payout")

	bg := context.Background()
	requireAmount(t, s, alice, "0")
	count, err := s.FunderCount(bg)
	require.NoError(t, err)
	assert.Zero(t, count)

	again := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), Owner: owner, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Drain(bg, again, slowPay))
	assert.Zero(t, again.Amount.Sign())

	assert.Equal(t, types.MustParseEther("1").String(), paid.String(), "owner paid more than was contributed")
	receipts, err := s.ListWithdrawals(bg, withdrawal.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, receipts, 2)
}

func testConcurrentContributions(t *testing.T, s store.Store) {
	const n = 16
	ctx := context.Background()
	value := types.MustParseEther("0.1")

	contributors := make(map[common.Address]bool, n)
	for i := range n {
		contributors[common.BigToAddress(big.NewInt(int64(0x100+i)))] = true
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for addr := range contributors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecordContribution(ctx, &contribution.Contribution{
				ID:             id.NewContributionID(),
				Contributor:    addr,
				Value:          new(big.Int).Set(value),
				ReferenceValue: new(big.Int).Mul(value, big.NewInt(2000)),
				CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	want := new(big.Int).Mul(value, big.NewInt(n))
	balance, err := s.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.String(), balance.String())

	count, err := s.FunderCount(ctx)
	require.NoError(t, err)
	require.Equal(t, n, count)

	seen := make(map[common.Address]bool, n)
	for i := range n {
		addr, err := s.FunderAt(ctx, i)
		require.NoError(t, err)
		assert.True(t, contributors[addr], "funder %d is %s", i, addr.Hex())
		assert.False(t, seen[addr], "funder %s listed twice", addr.Hex())
		seen[addr] = true
	}

	events, err := s.ListContributions(ctx, contribution.ListOpts{})
	require.NoError(t, err)
	positions := make(map[int]bool, n)
	for _, c := range events {
		positions[c.Position] = true
	}
	assert.Len(t, positions, n, "positions must be distinct")

	w := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), Owner: owner, CreatedAt: time.Now().UTC()}
	var paid *big.Int
	require.NoError(t, s.Drain(ctx, w, func(_ context.Context, amount *big.Int) error {
		paid = amount
		return nil
	}))
	assert.Equal(t, want.String(), paid.String())
	assert.Equal(t, n, w.Funders)
	assert.Equal(t, n, w.Contributors)

	count, err = s.FunderCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testRepeatedReads(t *testing.T, s store.Store) {
	ctx := context.Background()
	record(t, s, alice, "1")
	record(t, s, bob, "0.25")
	record(t, s, alice, "0.5")

	who := bob
	tests := []struct {
		name string
		read func() (string, error)
	}{
		{"Balance", func() (string, error) {
			v, err := s.Balance(ctx)
			return fmt.Sprint(v), err
		}},
		{"FunderCount", func() (string, error) {
			v, err := s.FunderCount(ctx)
			return fmt.Sprint(v), err
		}},
		{"FunderAt", func() (string, error) {
			v, err := s.FunderAt(ctx, 2)
			return v.Hex(), err
		}},
		{"FunderAtOutOfRange", func() (string, error) {
			_, err := s.FunderAt(ctx, 3)
			return fmt.Sprint(errors.Is(err, fundme.ErrIndexOutOfRange)), nil
		}},
		{"ContributedAmount", func() (string, error) {
			v, err := s.ContributedAmount(ctx, alice)
			return fmt.Sprint(v), err
		}},
		{"ContributedAmountUnknown", func() (string, error) {
			v, err := s.ContributedAmount(ctx, owner)
			return fmt.Sprint(v), err
		}},
		{"ListContributions", func() (string, error) {
			v, err := s.ListContributions(ctx, contribution.ListOpts{Contributor: &who})
			if err != nil {
				return "", err
			}
			out := ""
			for _, c := range v {
				out += fmt.Sprintf("%s:%s:%d;", c.ID, c.Value, c.Position)
			}
			return out, nil
		}},
		{"ListWithdrawals", func() (string, error) {
			v, err := s.ListWithdrawals(ctx, withdrawal.ListOpts{})
			return fmt.Sprint(len(v)), err
		}},
		{"GetDeployment", func() (string, error) {
			_, err := s.GetDeployment(ctx)
			return fmt.Sprint(errors.Is(err, fundme.ErrDeploymentNotFound)), nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := tt.read()
			require.NoError(t, err)
			for range 3 {
				got, err := tt.read()
				require.NoError(t, err)
				assert.Equal(t, first, got)
			}
		})
	}

	requireAmount(t, s, alice, "1.5")
	requireAmount(t, s, bob, "0.25")
}

func testDeployment(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetDeployment(ctx)
	require.ErrorIs(t, err, fundme.ErrDeploymentNotFound)

	d := &deployment.Deployment{
		Entity:     types.NewEntity(),
		ID:         id.NewDeploymentID(),
		Owner:      owner,
		PriceFeed:  common.HexToAddress("0x8A753747A1Fa494EC906CE90E9f37563A8AF630e"),
		MinimumUSD: new(big.Int).Mul(big.NewInt(50), types.Pow10(18)),
	}
	require.NoError(t, s.CreateDeployment(ctx, d))

	got, err := s.GetDeployment(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.ID.String(), got.ID.String())
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, d.PriceFeed, got.PriceFeed)
	assert.Equal(t, d.MinimumUSD.String(), got.MinimumUSD.String())

	dup := *d
	dup.ID = id.NewDeploymentID()
	assert.Error(t, s.CreateDeployment(ctx, &dup))
}
