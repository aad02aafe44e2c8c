// Package vault implements the central custody ledger. Many
// registered apps share one pool of assets; inside a lock session a
// holder may run any sequence of credits and debits across currencies
// and apps, and real asset movement is deferred until the whole batch
// nets to zero. If anything inside the session fails, the session
// rolls back as a unit.
package vault

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terminal-bench/assetvault/internal/asset"
	"github.com/terminal-bench/assetvault/internal/ledger"
	"github.com/terminal-bench/assetvault/pkg/messaging"
	"github.com/terminal-bench/assetvault/pkg/num"
)

var (
	ErrAppUnregistered      = errors.New("app is not registered")
	ErrNoLocker             = errors.New("no session is active")
	ErrSessionActive        = errors.New("fee collection is unavailable during a session")
	ErrArithmeticUnderflow  = errors.New("amount would go negative")
	ErrNonNativeSettleValue = errors.New("native value attached to non-native settlement")
)

// ShareLedger is the receipt-token collaborator consumed by mint and burn.
type ShareLedger interface {
	Issue(to asset.Address, currencyID string, amount *big.Int) error
	Redeem(from asset.Address, currencyID string, amount *big.Int) error
}

// LockFunc is the session holder's entry point, invoked synchronously
// by Lock. It may reenter any vault operation, directly or through
// registered apps. Its result is passed back unchanged as the result
// of Lock.
type LockFunc func(ctx context.Context, data []byte) ([]byte, error)

// Vault sequences the settlement ledger, app reserve ledger, reserve
// store, and external collaborators behind the public operation set.
type Vault struct {
	settlement  *ledger.SettlementLedger
	appReserves *ledger.AppReserveLedger
	reserves    *ledger.ReserveStore
	shares      ShareLedger
	events      *messaging.Client // optional, best-effort

	appsMu sync.RWMutex
	apps   map[asset.Address]bool

	// undo holds inverse operations for the active session, applied in
	// reverse order on rollback. Sessions are a single atomic unit of
	// execution, so the mutex is uncontended; it only keeps the read
	// accessors safe against concurrent observers.
	undoMu sync.Mutex
	undo   []func()
}

// New creates a vault. events may be nil; event publication is
// best-effort and carries no correctness.
func New(shareLedger ShareLedger, events *messaging.Client) *Vault {
	return &Vault{
		settlement:  ledger.NewSettlementLedger(),
		appReserves: ledger.NewAppReserveLedger(),
		reserves:    ledger.NewReserveStore(),
		shares:      shareLedger,
		events:      events,
		apps:        make(map[asset.Address]bool),
	}
}

// RegisterApp grants app permission to call accounting operations.
// Idempotent; the registration event fires once. There is no
// unregister path.
func (v *Vault) RegisterApp(ctx context.Context, app asset.Address) error {
	v.appsMu.Lock()
	if v.apps[app] {
		v.appsMu.Unlock()
		return nil
	}
	v.apps[app] = true
	v.appsMu.Unlock()

	v.publish(ctx, messaging.EventTypeAppRegistered, messaging.AppRegisteredEvent{
		EventID:   uuid.New(),
		App:       string(app),
		Timestamp: time.Now(),
	})
	return nil
}

// AppRegistered reports whether app has been registered.
func (v *Vault) AppRegistered(app asset.Address) bool {
	v.appsMu.RLock()
	defer v.appsMu.RUnlock()
	return v.apps[app]
}

// Lock opens the single global session for holder, invokes fn
// synchronously with data, and requires every delta accumulated during
// the callback to have returned to zero before releasing. On any
// failure — the callback's own error or unsettled balances — the
// acquire and every ledger mutation made during the session are rolled
// back together.
func (v *Vault) Lock(ctx context.Context, holder asset.Address, data []byte, fn LockFunc) ([]byte, error) {
	if err := v.settlement.AcquireSession(holder); err != nil {
		return nil, err
	}
	start := time.Now()

	result, err := fn(ctx, data)
	if err != nil {
		v.rewind(0)
		v.settlement.ForceRelease()
		return nil, err
	}

	if err := v.settlement.ReleaseSession(); err != nil {
		v.rewind(0)
		v.settlement.ForceRelease()
		return nil, err
	}
	v.clearUndo()

	v.publish(ctx, messaging.EventTypeSessionClosed, messaging.SessionClosedEvent{
		EventID:   uuid.New(),
		Holder:    string(holder),
		Duration:  time.Since(start).String(),
		Timestamp: time.Now(),
	})
	return result, nil
}

// AccountPoolDelta applies a two-currency delta reported by app for a
// pool, against settler's global settlement balance. Either both
// components apply or neither does.
func (v *Vault) AccountPoolDelta(app asset.Address, key asset.PoolKey, delta asset.BalanceDelta, settler asset.Address) error {
	if err := v.requireLocked(); err != nil {
		return err
	}
	if !v.AppRegistered(app) {
		return ErrAppUnregistered
	}

	m := v.mark()
	if err := v.accountOne(app, key.Currency0.ID(), delta.Amount0, settler); err != nil {
		return err
	}
	if err := v.accountOne(app, key.Currency1.ID(), delta.Amount1, settler); err != nil {
		v.rewind(m)
		return err
	}
	return nil
}

// AccountCurrencyDelta is the single-currency form of AccountPoolDelta.
func (v *Vault) AccountCurrencyDelta(app asset.Address, currency asset.Currency, delta *big.Int, settler asset.Address) error {
	if err := v.requireLocked(); err != nil {
		return err
	}
	if !v.AppRegistered(app) {
		return ErrAppUnregistered
	}
	return v.accountOne(app, currency.ID(), delta, settler)
}

// accountOne records one currency component: the app reserve moves by
// the inverted convention, the settlement delta is recorded for the
// nominated settler as-is. Both apply or neither does.
func (v *Vault) accountOne(app asset.Address, currencyID string, delta *big.Int, settler asset.Address) error {
	if num.IsZero(delta) {
		return nil
	}
	d := num.Clone(delta)

	if err := v.appReserves.Adjust(app, currencyID, d); err != nil {
		return err
	}
	if err := v.settlement.AccountDelta(settler, currencyID, d); err != nil {
		v.appReserves.Adjust(app, currencyID, num.Neg(d))
		return err
	}

	v.pushUndo(func() {
		v.settlement.AccountDelta(settler, currencyID, num.Neg(d))
		v.appReserves.Adjust(app, currencyID, num.Neg(d))
	})
	return nil
}

// Take withdraws amount of currency from the vault to to, debiting the
// caller's settlement balance. The balance may go negative during the
// session; it must be repaid before unlock. This is what makes flash
// accounting possible.
func (v *Vault) Take(ctx context.Context, caller asset.Address, currency asset.Currency, to asset.Address, amount *big.Int) error {
	if err := v.requireLocked(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	m := v.mark()
	if err := v.applyDelta(caller, currency.ID(), num.Neg(amount)); err != nil {
		return err
	}
	if err := currency.Transfer(ctx, to, amount); err != nil {
		v.rewind(m)
		return err
	}
	return nil
}

// Mint debits the caller like Take, but issues shares of currency to
// to instead of moving the external asset.
func (v *Vault) Mint(ctx context.Context, caller, to asset.Address, currency asset.Currency, amount *big.Int) error {
	if err := v.requireLocked(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	m := v.mark()
	if err := v.applyDelta(caller, currency.ID(), num.Neg(amount)); err != nil {
		return err
	}
	a := num.Clone(amount)
	curID := currency.ID()
	if err := v.shares.Issue(to, curID, a); err != nil {
		v.rewind(m)
		return err
	}
	v.pushUndo(func() { v.shares.Redeem(to, curID, a) })
	return nil
}

// Burn credits the caller's settlement balance and redeems shares of
// currency from from.
func (v *Vault) Burn(ctx context.Context, caller, from asset.Address, currency asset.Currency, amount *big.Int) error {
	if err := v.requireLocked(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	m := v.mark()
	if err := v.applyDelta(caller, currency.ID(), amount); err != nil {
		return err
	}
	a := num.Clone(amount)
	curID := currency.ID()
	if err := v.shares.Redeem(from, curID, a); err != nil {
		v.rewind(m)
		return err
	}
	v.pushUndo(func() { v.shares.Issue(from, curID, a) })
	return nil
}

// Settle credits the caller with the amount of currency actually paid
// into the vault. For the native currency the paid amount is exactly
// value. For token currencies value must be zero and the paid amount
// is the observed balance delta since the last sync — only the
// externally observable balance is trusted, never a caller-supplied
// figure.
func (v *Vault) Settle(ctx context.Context, caller asset.Address, currency asset.Currency, value *big.Int) (*big.Int, error) {
	if err := v.requireLocked(); err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, ErrArithmeticUnderflow
	}

	m := v.mark()
	var paid *big.Int
	if currency.IsNative() {
		paid = num.Clone(value)
	} else {
		if value.Sign() != 0 {
			return nil, ErrNonNativeSettleValue
		}
		prior := v.reserves.SnapshotOf(currency.ID())
		balance, err := v.Sync(ctx, currency)
		if err != nil {
			return nil, err
		}
		paid = new(big.Int).Sub(balance, prior)
		if paid.Sign() < 0 {
			v.rewind(m)
			return nil, ErrArithmeticUnderflow
		}
	}

	if err := v.applyDelta(caller, currency.ID(), paid); err != nil {
		v.rewind(m)
		return nil, err
	}

	v.publish(ctx, messaging.EventTypeSettled, messaging.SettledEvent{
		EventID:   uuid.New(),
		Settler:   string(caller),
		Currency:  currency.ID(),
		Paid:      paid.String(),
		Timestamp: time.Now(),
	})
	return paid, nil
}

// Sync refreshes the stored reserve snapshot for currency from the
// vault's actual on-hand balance and returns it. Callable at any time,
// by anyone; it only moves the reference point settle diffs against.
func (v *Vault) Sync(ctx context.Context, currency asset.Currency) (*big.Int, error) {
	balance, err := currency.BalanceOfSelf(ctx)
	if err != nil {
		return nil, err
	}

	curID := currency.ID()
	prev := v.reserves.SnapshotOf(curID)
	v.reserves.Record(curID, balance)
	if _, locked := v.settlement.Holder(); locked {
		v.pushUndo(func() { v.reserves.Record(curID, prev) })
	}

	v.publish(ctx, messaging.EventTypeSynced, messaging.SyncedEvent{
		EventID:   uuid.New(),
		Currency:  curID,
		Balance:   balance.String(),
		Timestamp: time.Now(),
	})
	return num.Clone(balance), nil
}

// CollectFee lets a registered app withdraw previously accrued fees
// from its own settled reserve. App-gated, and callable only outside
// an active session: reserve accrued mid-session is not settled until
// the session closes, and a payout drawn against it could not be
// rolled back with the rest of the session.
func (v *Vault) CollectFee(ctx context.Context, app asset.Address, currency asset.Currency, amount *big.Int, recipient asset.Address) error {
	if !v.AppRegistered(app) {
		return ErrAppUnregistered
	}
	if _, locked := v.settlement.Holder(); locked {
		return ErrSessionActive
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	// A positive delta decreases the app's reserve, with the same
	// underflow guard as accounting deltas.
	if err := v.appReserves.Adjust(app, currency.ID(), amount); err != nil {
		return err
	}
	if err := currency.Transfer(ctx, recipient, amount); err != nil {
		v.appReserves.Adjust(app, currency.ID(), num.Neg(amount))
		return err
	}

	v.publish(ctx, messaging.EventTypeFeeCollected, messaging.FeeCollectedEvent{
		EventID:   uuid.New(),
		App:       string(app),
		Currency:  currency.ID(),
		Amount:    amount.String(),
		Recipient: string(recipient),
		Timestamp: time.Now(),
	})
	return nil
}

// Read accessors.

// Locker returns the current session holder, if any.
func (v *Vault) Locker() (asset.Address, bool) {
	return v.settlement.Holder()
}

// UnsettledDeltaCount returns the number of (account, currency) pairs
// with a non-zero accumulated delta.
func (v *Vault) UnsettledDeltaCount() int {
	return v.settlement.OutstandingCount()
}

// CurrencyDelta returns the settler's accumulated settlement delta for
// a currency.
func (v *Vault) CurrencyDelta(settler asset.Address, currencyID string) *big.Int {
	return v.settlement.DeltaOf(settler, currencyID)
}

// ReservesOf returns the last-synced vault balance for a currency.
func (v *Vault) ReservesOf(currencyID string) *big.Int {
	return v.reserves.SnapshotOf(currencyID)
}

// AppReserveOf returns an app's current claim on vault-held funds for
// a currency.
func (v *Vault) AppReserveOf(app asset.Address, currencyID string) *big.Int {
	return v.appReserves.ReserveOf(app, currencyID)
}

// Internals.

func (v *Vault) requireLocked() error {
	if _, locked := v.settlement.Holder(); !locked {
		return ErrNoLocker
	}
	return nil
}

// applyDelta records a settlement delta with its inverse on the undo log.
func (v *Vault) applyDelta(account asset.Address, currencyID string, delta *big.Int) error {
	if num.IsZero(delta) {
		return nil
	}
	d := num.Clone(delta)
	if err := v.settlement.AccountDelta(account, currencyID, d); err != nil {
		return err
	}
	v.pushUndo(func() { v.settlement.AccountDelta(account, currencyID, num.Neg(d)) })
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrArithmeticUnderflow
	}
	if !num.FitsUint256(amount) {
		return ledger.ErrArithmeticOverflow
	}
	return nil
}

func (v *Vault) mark() int {
	v.undoMu.Lock()
	defer v.undoMu.Unlock()
	return len(v.undo)
}

func (v *Vault) pushUndo(fn func()) {
	v.undoMu.Lock()
	defer v.undoMu.Unlock()
	v.undo = append(v.undo, fn)
}

// rewind applies undo entries above m in reverse order and truncates
// the log. Inverses of valid operations stay in range, so their errors
// are ignored.
func (v *Vault) rewind(m int) {
	v.undoMu.Lock()
	entries := v.undo[m:]
	v.undo = v.undo[:m]
	v.undoMu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		entries[i]()
	}
}

func (v *Vault) clearUndo() {
	v.undoMu.Lock()
	defer v.undoMu.Unlock()
	v.undo = v.undo[:0]
}

// publish emits an event best-effort; delivery carries no correctness.
func (v *Vault) publish(ctx context.Context, subject string, event interface{}) {
	if v.events == nil {
		return
	}
	v.events.Publish(ctx, subject, event)
}
