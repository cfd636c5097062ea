// Package ledger keeps per-tenant token balances and the shop catalogue.
//
// Every balance mutation runs under the account's entity lock. Spending
// goes through Account.Debit, which refuses to overdraw.
package ledger

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MRamiBalles/PetGuild/internal/domain/account"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// Credit sources, used as metric labels.
const (
	SourceGrant     = "grant"
	SourceAccrual   = "accrual"
	SourceActivity  = "activity"
	SourceEvolution = "evolution"
)

// Config tunes the economy.
type Config struct {
	// AccrualRate is passive income per idle hour.
	AccrualRate float64
	// Activity bonus bounds, inclusive.
	BonusMin int64
	BonusMax int64
}

// DefaultConfig matches the reference economy.
func DefaultConfig() Config {
	return Config{AccrualRate: 0.125, BonusMin: 1, BonusMax: 3}
}

// Ledger is the economy service for all tenants.
type Ledger struct {
	store   *store.Store
	clock   clock.Clock
	log     *logger.Logger
	metrics *metrics.Metrics
	cfg     Config
	bonus   func() int64
	printer *message.Printer
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithBonusSource replaces the random activity bonus.
func WithBonusSource(fn func() int64) Option {
	return func(l *Ledger) { l.bonus = fn }
}

func New(st *store.Store, clk clock.Clock, log *logger.Logger, m *metrics.Metrics, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		store:   st,
		clock:   clk,
		log:     log,
		metrics: m,
		cfg:     cfg,
		printer: message.NewPrinter(language.English),
	}
	l.bonus = func() int64 {
		span := l.cfg.BonusMax - l.cfg.BonusMin
		if span <= 0 {
			return l.cfg.BonusMin
		}
		return l.cfg.BonusMin + rand.Int64N(span+1)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FormatTokens renders an amount with thousands separators.
func (l *Ledger) FormatTokens(n int64) string {
	return l.printer.Sprintf("%d", n)
}

// Account is one balance opened by WithAccount. It is only valid inside the callback.
type Account struct {
	ID      string
	bal     account.Balance
	credits map[string]int64
	debits  map[string]int64
	changed bool
	format  func(int64) string
}

// Balance is the current amount.
func (a *Account) Balance() int64 { return a.bal.Amount }

// Record returns a copy of the full balance record.
func (a *Account) Record() account.Balance { return a.bal }

// Credit adds amount. Zero is allowed; negative amounts are rejected.
func (a *Account) Credit(amount int64, source string) error {
	if amount < 0 {
		return store.Reject(store.ReasonInvalidInput, "Amount must not be negative.")
	}
	a.bal.Amount += amount
	a.credits[source] += amount
	a.changed = true
	return nil
}

// Debit removes amount only if the balance covers it. On failure the balance is unchanged.
func (a *Account) Debit(amount int64, purpose string) error {
	if amount < 0 {
		return store.Reject(store.ReasonInvalidInput, "Amount must not be negative.")
	}
	if a.bal.Amount < amount {
		return store.Reject(store.ReasonInsufficientFunds,
			"You need %s tokens but only have %s.", a.format(amount), a.format(a.bal.Amount))
	}
	a.bal.Amount -= amount
	a.debits[purpose] += amount
	a.changed = true
	return nil
}

// Touch marks the account active at now.
func (a *Account) Touch(now time.Time) {
	a.bal.Touch(now)
	a.changed = true
}

// WithAccount runs fn with exclusive access to one balance. Changes are
// written back only when fn returns nil.
func (l *Ledger) WithAccount(tenant, accountID string, fn func(*Account) error) error {
	if !store.ValidSegment(accountID) {
		return store.Reject(store.ReasonInvalidInput, "Invalid account id.")
	}
	unlock := l.store.Locks().Lock(store.AccountKey(tenant, accountID))
	defer unlock()

	path := store.Path(store.FieldAccounts, accountID)
	bal, _, err := store.GetAs[account.Balance](l.store, tenant, path)
	if err != nil {
		return err
	}
	acc := &Account{
		ID:      accountID,
		bal:     bal,
		credits: map[string]int64{},
		debits:  map[string]int64{},
		format:  l.FormatTokens,
	}
	if err := fn(acc); err != nil {
		return err
	}
	if !acc.changed {
		return nil
	}
	if err := l.store.Set(tenant, path, acc.bal); err != nil {
		return err
	}
	for src, n := range acc.credits {
		l.metrics.TokensCredited.WithLabelValues(src).Add(float64(n))
	}
	for purpose, n := range acc.debits {
		l.metrics.TokensDebited.WithLabelValues(purpose).Add(float64(n))
	}
	return nil
}

// Balance returns the account's amount; never-credited accounts hold 0.
func (l *Ledger) Balance(tenant, accountID string) (int64, error) {
	if !store.ValidSegment(accountID) {
		return 0, store.Reject(store.ReasonInvalidInput, "Invalid account id.")
	}
	bal, _, err := store.GetAs[account.Balance](l.store, tenant, store.Path(store.FieldAccounts, accountID))
	return bal.Amount, err
}

// AddTokens credits amount and returns the new balance.
func (l *Ledger) AddTokens(tenant, accountID string, amount int64, source string) (int64, error) {
	var after int64
	err := l.WithAccount(tenant, accountID, func(a *Account) error {
		if err := a.Credit(amount, source); err != nil {
			return err
		}
		after = a.Balance()
		return nil
	})
	return after, err
}

// RemoveTokens debits amount if covered and returns the new balance.
// A rejected debit leaves the balance untouched.
func (l *Ledger) RemoveTokens(tenant, accountID string, amount int64, purpose string) (int64, error) {
	var after int64
	err := l.WithAccount(tenant, accountID, func(a *Account) error {
		if err := a.Debit(amount, purpose); err != nil {
			return err
		}
		after = a.Balance()
		return nil
	})
	return after, err
}

// TouchActivity records now as the account's last activity.
func (l *Ledger) TouchActivity(tenant, accountID string) error {
	now := l.clock.Now()
	return l.WithAccount(tenant, accountID, func(a *Account) error {
		a.Touch(now)
		return nil
	})
}

// RecordActivity credits the chat activity bonus and touches the account.
// It returns the bonus granted.
func (l *Ledger) RecordActivity(tenant, accountID string) (int64, error) {
	now := l.clock.Now()
	bonus := l.bonus()
	err := l.WithAccount(tenant, accountID, func(a *Account) error {
		if err := a.Credit(bonus, SourceActivity); err != nil {
			return err
		}
		a.Touch(now)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return bonus, nil
}

// AccrualReport summarises one passive accrual pass over a tenant.
type AccrualReport struct {
	Accounts int
	Credited int
	Tokens   int64
}

// PassiveAccrual pays idle income to every active account of tenant.
// Each account is owed floor(idleHours*rate) since its last activity; only the
// part not yet credited is paid, so repeating a pass at the same now pays nothing.
// A failing account does not stop the rest.
func (l *Ledger) PassiveAccrual(tenant string, now time.Time) (AccrualReport, error) {
	var report AccrualReport
	ids, err := l.store.Keys(tenant, store.FieldAccounts)
	if err != nil {
		return report, err
	}
	var errs []error
	for _, id := range ids {
		report.Accounts++
		var paid int64
		err := l.WithAccount(tenant, id, func(a *Account) error {
			due := a.bal.PassiveDue(now, l.cfg.AccrualRate)
			if due == 0 {
				return nil
			}
			if err := a.Credit(due, SourceAccrual); err != nil {
				return err
			}
			a.bal.Accrued += due
			paid = due
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", id, err))
			continue
		}
		if paid > 0 {
			report.Credited++
			report.Tokens += paid
		}
	}
	if report.Tokens > 0 {
		l.log.Debug("passive accrual",
			zap.String("tenant", tenant),
			zap.Int("accounts", report.Credited),
			zap.Int64("tokens", report.Tokens))
	}
	return report, errors.Join(errs...)
}

// Accounts lists the tenant's account ids.
func (l *Ledger) Accounts(tenant string) ([]string, error) {
	return l.store.Keys(tenant, store.FieldAccounts)
}

// Standing is one leaderboard row.
type Standing struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// Leaderboard ranks accounts by balance, richest first.
func (l *Ledger) Leaderboard(tenant string, limit int) ([]Standing, error) {
	ids, err := l.store.Keys(tenant, store.FieldAccounts)
	if err != nil {
		return nil, err
	}
	rows := make([]Standing, 0, len(ids))
	for _, id := range ids {
		bal, ok, err := store.GetAs[account.Balance](l.store, tenant, store.Path(store.FieldAccounts, id))
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, Standing{Account: id, Amount: bal.Amount})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Amount > rows[j].Amount })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
