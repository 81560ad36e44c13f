// Package exchange owns the ledger state and serializes every operation against it.
//
// A write runs begin -> execute -> persist -> apply under one lock. A revert or a storage
// failure drops the staged transaction, so the committed state never sees half an operation.
package exchange

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/swappin/params"
	"github.com/uhyunpark/swappin/pkg/app/core/ledger"
	"github.com/uhyunpark/swappin/pkg/app/core/revert"
	"github.com/uhyunpark/swappin/pkg/app/core/state"
	"github.com/uhyunpark/swappin/pkg/app/core/swap"
	"github.com/uhyunpark/swappin/pkg/app/core/token"
	"github.com/uhyunpark/swappin/pkg/metrics"
	"github.com/uhyunpark/swappin/pkg/util"
)

// Store persists change sets; storage.Store is the production implementation
type Store interface {
	Commit(cs *state.ChangeSet) error
	CommitGenesis(cs *state.ChangeSet) error
	GenesisApplied() (bool, error)
}

// Journal records committed calls in order
type Journal interface {
	Append(v any) error
}

// CommitHook observes every committed change set. Hooks run under the app lock and
// must not block.
type CommitHook func(cs *state.ChangeSet)

type Option func(*App)

func WithStore(s Store) Option              { return func(a *App) { a.store = s } }
func WithJournal(j Journal) Option          { return func(a *App) { a.journal = j } }
func WithClock(c util.Clock) Option         { return func(a *App) { a.clock = c } }
func WithMetrics(m *metrics.Metrics) Option { return func(a *App) { a.metrics = m } }

// WithRateEnforcement rejects purchases that pay below the order's creation rate
func WithRateEnforcement() Option {
	return func(a *App) { a.bookOpts = append(a.bookOpts, swap.WithRateEnforcement()) }
}

// OnCommit registers a hook called after each commit
func OnCommit(h CommitHook) Option {
	return func(a *App) { a.hooks = append(a.hooks, h) }
}

type App struct {
	mu      sync.RWMutex
	world   *state.World
	tokens  *token.Registry
	custody common.Address

	store    Store
	journal  Journal
	clock    util.Clock
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	hooks    []CommitHook
	bookOpts []swap.Option
}

// New wraps world. custody is the order book's escrow account.
// Without WithStore the app keeps state in memory only.
func New(world *state.World, tokens *token.Registry, custody common.Address, logger *zap.SugaredLogger, opts ...Option) *App {
	a := &App{
		world:   world,
		tokens:  tokens,
		custody: custody,
		store:   &memStore{},
		journal: nopJournal{},
		clock:   util.RealClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Custody returns the order book's escrow account
func (a *App) Custody() common.Address { return a.custody }

// Tokens returns the token registry
func (a *App) Tokens() *token.Registry { return a.tokens }

// InitGenesis registers the genesis tokens and, on a store that never saw genesis,
// mints the allocations in one commit. Safe to call on every start.
func (a *App) InitGenesis(g *params.ResolvedGenesis) error {
	if g.Book != a.custody {
		return fmt.Errorf("genesis book %s does not match custody %s", g.Book.Hex(), a.custody.Hex())
	}
	for _, t := range g.Tokens {
		if a.tokens.Exists(t.Address) {
			continue
		}
		if err := a.tokens.Register(t); err != nil {
			return fmt.Errorf("failed to register genesis token: %w", err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	applied, err := a.store.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		a.logger.Infow("genesis_already_applied", "height", a.world.Height(), "tokens", len(g.Tokens))
		return nil
	}

	tx := a.world.Begin(a.clock.Now().UnixMilli())
	for _, alloc := range g.Allocations {
		if alloc.Account == a.custody {
			return fmt.Errorf("genesis allocation to custody account %s", alloc.Account.Hex())
		}
		if err := ledger.New(alloc.Token, tx).Mint(alloc.Account, alloc.Amount); err != nil {
			return fmt.Errorf("genesis mint: %w", err)
		}
	}

	cs := tx.Changes()
	if err := a.store.CommitGenesis(cs); err != nil {
		return fmt.Errorf("failed to commit genesis: %w", err)
	}
	a.world.Apply(cs)
	a.afterCommit(cs, &Entry{Height: cs.Height, Timestamp: cs.Timestamp, Genesis: true, Events: cs.Events})

	a.logger.Infow("genesis_applied", "tokens", len(g.Tokens), "allocations", len(g.Allocations), "height", cs.Height)
	return nil
}

// Execute validates and runs a call. On error nothing is committed; domain failures
// are *revert.Error.
func (a *App) Execute(c *Call) (*Receipt, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}
	start := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	tx := a.world.Begin(a.clock.Now().UnixMilli())
	receipt := &Receipt{}
	if err := a.run(tx, c, receipt); err != nil {
		kind := revert.KindUnknown
		if r, ok := revert.As(err); ok {
			kind = r.Kind
		}
		a.metrics.Reverted(string(c.Method), kind.String(), time.Since(start))
		a.logger.Debugw("call_reverted", "method", c.Method, "caller", c.Caller.Hex(), "err", err)
		return nil, err
	}

	cs := tx.Changes()
	if err := a.store.Commit(cs); err != nil {
		a.logger.Errorw("commit_failed", "method", c.Method, "height", cs.Height, "err", err)
		return nil, fmt.Errorf("failed to persist %s: %w", c.Method, err)
	}
	a.world.Apply(cs)
	a.afterCommit(cs, &Entry{Height: cs.Height, Timestamp: cs.Timestamp, Call: c, Events: cs.Events})
	a.metrics.Committed(string(c.Method), time.Since(start))

	receipt.Height = cs.Height
	receipt.Events = cs.Events
	return receipt, nil
}

func (a *App) run(tx *state.Tx, c *Call, receipt *Receipt) error {
	if c.Caller == a.custody {
		return revert.New(revert.ErrCustodyCaller, "caller %s", c.Caller.Hex())
	}
	for _, t := range c.tokens() {
		if !a.tokens.Exists(t) {
			return revert.New(revert.ErrUnknownToken, "token %s", t.Hex())
		}
	}

	book := swap.NewBook(a.custody, tx, a.bookOpts...)
	switch c.Method {
	case MethodApprove:
		ledger.New(c.Token, tx).Approve(c.Caller, c.Spender, c.Amount)
		return nil
	case MethodTransfer:
		return ledger.New(c.Token, tx).Transfer(c.Caller, c.To, c.Amount)
	case MethodTransferFrom:
		return book.TransferFrom(c.Caller, c.From, c.To, c.Token, c.Amount)
	case MethodCreateOrder:
		id, err := book.CreateOrder(c.Caller, c.DepositToken, c.DepositAmount, c.PaymentToken, c.PaymentAmount)
		if err != nil {
			return err
		}
		receipt.OrderID = &id
		return nil
	case MethodPurchaseTokens:
		return book.PurchaseTokens(c.Caller, c.OrderID, c.Amount, c.PaymentToken, c.PaymentAmount)
	}
	return fmt.Errorf("unknown call method: %s", c.Method)
}

// afterCommit journals, updates gauges and runs hooks. The state is already committed,
// so a journal failure is logged, not returned.
func (a *App) afterCommit(cs *state.ChangeSet, entry *Entry) {
	if err := a.journal.Append(entry); err != nil {
		a.logger.Errorw("journal_append_failed", "height", cs.Height, "err", err)
	}
	a.metrics.SetState(a.world.Height(), a.world.OrderCount(), a.openOrdersLocked())
	for _, h := range a.hooks {
		h(cs)
	}
}

func (a *App) openOrdersLocked() uint64 {
	return uint64(len(a.world.Orders(func(o *swap.Order) bool { return o.Status() == swap.OrderOpen })))
}

// Approve sets caller's allowance for spender on token to exactly amount
func (a *App) Approve(caller, tokenAddr, spender common.Address, amount *uint256.Int) error {
	_, err := a.Execute(&Call{Method: MethodApprove, Caller: caller, Token: tokenAddr, Spender: spender, Amount: amount})
	return err
}

// Transfer moves amount of token from caller to `to`
func (a *App) Transfer(caller, tokenAddr, to common.Address, amount *uint256.Int) error {
	_, err := a.Execute(&Call{Method: MethodTransfer, Caller: caller, Token: tokenAddr, To: to, Amount: amount})
	return err
}

// TransferFrom moves amount of token from `from` to `to`, spending caller's allowance
func (a *App) TransferFrom(caller, from, to, tokenAddr common.Address, amount *uint256.Int) error {
	_, err := a.Execute(&Call{Method: MethodTransferFrom, Caller: caller, Token: tokenAddr, From: from, To: to, Amount: amount})
	return err
}

// CreateOrder escrows the deposit and returns the new order id
func (a *App) CreateOrder(caller, depositToken common.Address, depositAmount *uint256.Int, paymentToken common.Address, paymentAmount *uint256.Int) (uint64, error) {
	r, err := a.Execute(&Call{
		Method:        MethodCreateOrder,
		Caller:        caller,
		DepositToken:  depositToken,
		DepositAmount: depositAmount,
		PaymentToken:  paymentToken,
		PaymentAmount: paymentAmount,
	})
	if err != nil {
		return 0, err
	}
	return *r.OrderID, nil
}

// PurchaseTokens buys amount of order id's deposit, paying paymentAmount of paymentToken
func (a *App) PurchaseTokens(caller common.Address, id uint64, amount *uint256.Int, paymentToken common.Address, paymentAmount *uint256.Int) error {
	_, err := a.Execute(&Call{
		Method:        MethodPurchaseTokens,
		Caller:        caller,
		OrderID:       id,
		Amount:        amount,
		PaymentToken:  paymentToken,
		PaymentAmount: paymentAmount,
	})
	return err
}

func (a *App) BalanceOf(tokenAddr, account common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.world.Balance(tokenAddr, account)
}

func (a *App) Allowance(tokenAddr, owner, spender common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.world.Allowance(tokenAddr, owner, spender)
}

func (a *App) TotalSupply(tokenAddr common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.world.Supply(tokenAddr)
}

// Order returns a copy of order id, or revert.ErrUnknownOrder
func (a *App) Order(id uint64) (*swap.Order, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, ok := a.world.Order(id)
	if !ok {
		return nil, revert.New(revert.ErrUnknownOrder, "order %d", id)
	}
	return o, nil
}

// OrdersBySeller returns seller's orders in id order
func (a *App) OrdersBySeller(seller common.Address) []*swap.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.world.Orders(func(o *swap.Order) bool { return o.Seller == seller })
}

// Orders returns every order, or only open ones
func (a *App) Orders(openOnly bool) []*swap.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !openOnly {
		return a.world.Orders(nil)
	}
	return a.world.Orders(func(o *swap.Order) bool { return o.Status() == swap.OrderOpen })
}

// Status summarizes the committed state
type Status struct {
	Height     uint64         `json:"height"`
	Root       common.Hash    `json:"root"`
	Orders     uint64         `json:"orders"`
	OpenOrders uint64         `json:"openOrders"`
	Tokens     int            `json:"tokens"`
	Custody    common.Address `json:"custody"`
}

func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		Height:     a.world.Height(),
		Root:       a.world.Root(),
		Orders:     a.world.OrderCount(),
		OpenOrders: a.openOrdersLocked(),
		Tokens:     a.tokens.Count(),
		Custody:    a.custody,
	}
}

// CheckSupply verifies that every token's balances sum to its total supply
func (a *App) CheckSupply() error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var errs []error
	for _, t := range a.world.Tokens() {
		sum, supply := a.world.SumBalances(t), a.world.Supply(t)
		if !sum.Eq(supply) {
			errs = append(errs, fmt.Errorf("token %s: balances %s, supply %s", t.Hex(), sum.Dec(), supply.Dec()))
		}
	}
	return errors.Join(errs...)
}

// memStore keeps nothing; the world is the only copy
type memStore struct {
	genesis bool
}

func (s *memStore) Commit(*state.ChangeSet) error { return nil }

func (s *memStore) CommitGenesis(*state.ChangeSet) error {
	s.genesis = true
	return nil
}

func (s *memStore) GenesisApplied() (bool, error) { return s.genesis, nil }

type nopJournal struct{}

func (nopJournal) Append(any) error { return nil }
