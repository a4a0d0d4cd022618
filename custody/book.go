// Package custody keeps native balances for accounts and for the ledger
// itself, so contributions and withdrawals move real value around.
//
// A Book plays the part of the chain: Escrow moves value from an account
// into the ledger's holding when a contribution is sent, and Transfer pays
// it back out to the owner on withdrawal.
package custody

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/types"
)

// ErrInsufficientFunds is returned when an account or the holding cannot
// cover a debit.
var ErrInsufficientFunds = errors.New("custody: insufficient funds")

var _ fundme.Transferer = (*Book)(nil)

// Book is a set of account balances plus the ledger's holding.
type Book struct {
	mu       sync.Mutex
	accounts map[common.Address]*big.Int
	held     *big.Int
	faucet   *big.Int
	failNext error
}

// Option configures a Book.
type Option func(*Book)

// WithFaucet gives every account amount the first time it is seen, the way
// development chains prefund their accounts.
func WithFaucet(amount *big.Int) Option {
	return func(b *Book) { b.faucet = new(big.Int).Set(amount) }
}

// NewBook creates an empty Book.
func NewBook(opts ...Option) *Book {
	b := &Book{
		accounts: make(map[common.Address]*big.Int),
		held:     new(big.Int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Book) account(addr common.Address) *big.Int {
	bal, ok := b.accounts[addr]
	if !ok {
		bal = new(big.Int)
		if b.faucet != nil {
			bal.Set(b.faucet)
		}
		b.accounts[addr] = bal
	}
	return bal
}

// Credit adds amount to addr.
func (b *Book) Credit(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.account(addr)
	bal.Add(bal, amount)
}

// BalanceOf returns the balance of addr.
func (b *Book) BalanceOf(addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.account(addr))
}

// Held returns the value currently held for the ledger.
func (b *Book) Held() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.held)
}

// Escrow moves amount from addr into the holding.
func (b *Book) Escrow(_ context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("custody: invalid amount %v", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.account(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s ETH, needs %s", ErrInsufficientFunds,
			from.Hex(), types.FormatEther(bal), types.FormatEther(amount))
	}
	bal.Sub(bal, amount)
	b.held.Add(b.held, amount)
	return nil
}

// Refund returns escrowed value to addr.
func (b *Book) Refund(_ context.Context, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.release(to, amount)
}

// Transfer implements fundme.Transferer by paying out of the holding.
func (b *Book) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failNext; err != nil {
		b.failNext = nil
		return err
	}
	return b.release(to, amount)
}

func (b *Book) release(to common.Address, amount *big.Int) error {
	if b.held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: holding has %s ETH, needs %s", ErrInsufficientFunds,
			types.FormatEther(b.held), types.FormatEther(amount))
	}
	b.held.Sub(b.held, amount)
	bal := b.account(to)
	bal.Add(bal, amount)
	return nil
}

// FailNextTransfer makes the next Transfer return err without moving value.
func (b *Book) FailNextTransfer(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

// Contribute sends value from an account to l: it is escrowed first and
// refunded if the ledger rejects it.
func (b *Book) Contribute(ctx context.Context, l *fundme.Ledger, from common.Address, value *big.Int) (*contribution.Contribution, error) {
	if err := b.Escrow(ctx, from, value); err != nil {
		return nil, err
	}
	c, err := l.Contribute(ctx, from, value)
	if err != nil {
		if refundErr := b.Refund(ctx, from, value); refundErr != nil {
			return nil, errors.Join(err, refundErr)
		}
		return nil, err
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Persistence
// ──────────────────────────────────────────────────

type snapshot struct {
	Held     string            `yaml:"held"`
	Accounts map[string]string `yaml:"accounts"`
}

// WriteTo encodes the book as YAML with wei amounts as decimal strings.
func (b *Book) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	snap := snapshot{Held: b.held.String(), Accounts: make(map[string]string, len(b.accounts))}
	addrs := make([]common.Address, 0, len(b.accounts))
	for addr := range b.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })
	for _, addr := range addrs {
		snap.Accounts[addr.Hex()] = b.accounts[addr].String()
	}
	b.mu.Unlock()

	out, err := yaml.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("custody: encode: %w", err)
	}
	n, err := w.Write(out)
	return int64(n), err
}

// Read decodes a book written by WriteTo.
func Read(r io.Reader, opts ...Option) (*Book, error) {
	var snap snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("custody: decode: %w", err)
	}

	b := NewBook(opts...)
	if snap.Held != "" {
		held, ok := new(big.Int).SetString(snap.Held, 10)
		if !ok {
			return nil, fmt.Errorf("custody: malformed holding %q", snap.Held)
		}
		b.held = held
	}
	for hex, raw := range snap.Accounts {
		if !common.IsHexAddress(hex) {
			return nil, fmt.Errorf("custody: malformed address %q", hex)
		}
		bal, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("custody: malformed balance %q for %s", raw, hex)
		}
		b.accounts[common.HexToAddress(hex)] = bal
	}
	return b, nil
}

// Load reads the book at path. A missing file yields an empty book.
func Load(path string, opts ...Option) (*Book, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewBook(opts...), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, opts...)
}

// Save writes the book to path.
func (b *Book) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := b.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
