package chainlink_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/oracle/chainlink"
)

// fakeAggregator answers eth_call requests by ABI-encoding canned outputs.
type fakeAggregator struct {
	t        *testing.T
	abi      abi.ABI
	address  common.Address
	decimals uint8
	answer   *big.Int
	updated  int64
	err      error
	calls    map[string]int
}

func newFakeAggregator(t *testing.T, address common.Address) *fakeAggregator {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(chainlink.AggregatorV3ABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return &fakeAggregator{
		t:        t,
		abi:      parsed,
		address:  address,
		decimals: 8,
		answer:   big.NewInt(200000000000),
		updated:  1700000000,
		calls:    make(map[string]int),
	}
}

func (f *fakeAggregator) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if msg.To == nil || *msg.To != f.address {
		f.t.Fatalf("call sent to %v, want %s", msg.To, f.address)
	}

	for name, m := range f.abi.Methods {
		if !bytes.Equal(msg.Data[:4], m.ID) {
			continue
		}
		f.calls[name]++
		switch name {
		case "decimals":
			return m.Outputs.Pack(f.decimals)
		case "description":
			return m.Outputs.Pack("ETH / USD")
		case "latestRoundData":
			return m.Outputs.Pack(
				big.NewInt(42),
				f.answer,
				big.NewInt(f.updated-12),
				big.NewInt(f.updated),
				big.NewInt(42),
			)
		}
	}
	f.t.Fatalf("unexpected selector %x", msg.Data[:4])
	return nil, nil
}

func TestLatestRoundData(t *testing.T) {
	addr := common.HexToAddress("0x8A753747A1Fa494EC906CE90E9f37563A8AF630e")
	fake := newFakeAggregator(t, addr)
	feed, err := chainlink.New(addr, fake)
	if err != nil {
		t.Fatal(err)
	}

	round, err := feed.LatestRoundData(context.Background())
	if err != nil {
		t.Fatalf("LatestRoundData: %v", err)
	}
	if round.RoundID.Int64() != 42 {
		t.Errorf("round id: got %s", round.RoundID)
	}
	if round.Answer.Cmp(fake.answer) != 0 {
		t.Errorf("answer: got %s, want %s", round.Answer, fake.answer)
	}
	if !round.UpdatedAt.Equal(time.Unix(fake.updated, 0)) {
		t.Errorf("updated at: got %s", round.UpdatedAt)
	}
}

func TestDecimalsCached(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	fake := newFakeAggregator(t, addr)
	feed, err := chainlink.New(addr, fake)
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		d, err := feed.Decimals(context.Background())
		if err != nil {
			t.Fatalf("Decimals: %v", err)
		}
		if d != 8 {
			t.Errorf("got %d, want 8", d)
		}
	}
	if fake.calls["decimals"] != 1 {
		t.Errorf("decimals called %d times, want 1", fake.calls["decimals"])
	}
}

func TestDescription(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	feed, err := chainlink.New(addr, newFakeAggregator(t, addr))
	if err != nil {
		t.Fatal(err)
	}
	desc, err := feed.Description(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if desc != "ETH / USD" {
		t.Errorf("got %q", desc)
	}
}

func TestAdapterOverChainlink(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	feed, err := chainlink.New(addr, newFakeAggregator(t, addr))
	if err != nil {
		t.Fatal(err)
	}

	a := oracle.NewAdapter(feed)
	if a.Address() != addr {
		t.Errorf("address: got %s", a.Address())
	}
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	got, err := a.Convert(context.Background(), oneEther)
	if err != nil {
		t.Fatal(err)
	}
	want := new(big.Int).Mul(big.NewInt(2000), oneEther)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCallError(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	fake := newFakeAggregator(t, addr)
	fake.err = errors.New("connection refused")
	feed, err := chainlink.New(addr, fake)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := feed.LatestRoundData(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	_, err = oracle.NewAdapter(feed).Convert(context.Background(), big.NewInt(1))
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
