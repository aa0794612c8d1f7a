// Package vault implements the upgradeable custody vault.
//
// A vault runs one of three versions. Version 1 keeps deposits net of a fee,
// version 2 adds yield accrual and a deposit pause switch, version 3 adds
// queued withdrawals with a mandatory delay and an emergency exit. The active
// version is part of the persisted state and moves forward only through
// Upgrade, which runs the migration that introduces the next version's
// fields. Every version has a one-shot initializer.
//
// Each operation is atomic: it runs inside a single storage transaction,
// writes all state before calling the asset ledger, and persists nothing if
// any step fails.
package vault

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/metrics"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

// DefaultTopic is the topic vault events are published to.
const DefaultTopic = "vault_events"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures a Vault.
type Option func(*Vault)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(v *Vault) { v.clock = c }
}

// WithPublisher publishes committed operations as events on topic.
func WithPublisher(p interfaces.EventPublisher, topic string) Option {
	return func(v *Vault) {
		v.publisher = p
		v.topic = topic
	}
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Vault) { v.metrics = m }
}

// Vault is the custody ledger. The zero value is a bare implementation that
// is not bound to any storage: it rejects every call, initializers included.
type Vault struct {
	mu        sync.Mutex
	store     interfaces.VaultStore
	asset     interfaces.AssetLedger
	custody   models.Address
	clock     Clock
	publisher interfaces.EventPublisher
	topic     string
	metrics   *metrics.Metrics

	// transferring is set while the asset ledger runs a transfer on behalf
	// of an operation.
	transferring atomic.Bool
}

// New returns a vault persisting its state in store and holding asset on the
// custody account.
func New(store interfaces.VaultStore, asset interfaces.AssetLedger, custody models.Address, opts ...Option) (*Vault, error) {
	if store == nil {
		return nil, errors.Wrap(errors.ErrInput, "store is required")
	}
	if asset == nil {
		return nil, errors.Wrap(errors.ErrInput, "asset ledger is required")
	}
	if custody == "" {
		return nil, errors.Wrap(errors.ErrInput, "custody address is required")
	}
	v := &Vault{
		store:   store,
		asset:   asset,
		custody: custody,
		clock:   systemClock{},
		topic:   DefaultTopic,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Custody returns the account holding the deposited asset.
func (v *Vault) Custody() models.Address {
	return v.custody
}

// guardKey marks a context as belonging to an operation of a given vault.
type guardKey struct {
	vault *Vault
}

// checkReentry rejects calls made from within the asset ledger, whether they
// carry the operation's context or a fresh one. While a transfer is in flight
// the vault accepts no calls at all.
func (v *Vault) checkReentry(ctx context.Context) error {
	if id, ok := ctx.Value(guardKey{vault: v}).(uuid.UUID); ok {
		return errors.Wrapf(ErrReentrant, "operation %s in progress", id)
	}
	if v.transferring.Load() {
		return errors.Wrap(ErrReentrant, "asset transfer in progress")
	}
	return nil
}

func (v *Vault) bound() error {
	if v.store == nil {
		return errors.Wrap(errors.ErrUnauthorized, "implementation is not bound to storage, initializers are disabled")
	}
	return nil
}

// update runs fn as a single atomic operation. The context handed to the
// asset ledger carries the operation id; calls made with it are rejected.
// The storage transaction ignores cancellation of ctx: once the asset has
// moved, the ledger change is committed.
func (v *Vault) update(ctx context.Context, name string, caller models.Address, fn func(o *operation) error) error {
	if err := v.bound(); err != nil {
		return err
	}
	if err := v.checkReentry(ctx); err != nil {
		v.metrics.Observe(name, outcome(err))
		return err
	}
	opID := uuid.New()
	ctx = context.WithValue(ctx, guardKey{vault: v}, opID)

	v.mu.Lock()
	defer v.mu.Unlock()

	storeCtx := context.WithoutCancel(ctx)
	var op *operation
	err := v.store.Update(storeCtx, func(tx interfaces.VaultTx) error {
		op = &operation{
			ctx:      storeCtx,
			assetCtx: ctx,
			vault:    v,
			tx:       tx,
			now:      v.clock.Now(),
			caller:   caller,
		}
		return fn(op)
	})
	v.metrics.Observe(name, outcome(err))
	if err != nil {
		log.WithFields(log.Fields{
			"op":     name,
			"caller": caller,
		}).WithError(err).Debug("vault operation rejected")
		return err
	}

	v.committed(storeCtx, name, opID, op)
	return nil
}

// view runs fn with read-only access to the vault.
func (v *Vault) view(ctx context.Context, fn func(o *operation) error) error {
	if err := v.bound(); err != nil {
		return err
	}
	if err := v.checkReentry(ctx); err != nil {
		return err
	}
	return v.store.View(ctx, func(tx interfaces.VaultTx) error {
		return fn(&operation{
			ctx:      ctx,
			assetCtx: ctx,
			vault:    v,
			tx:       tx,
			now:      v.clock.Now(),
		})
	})
}

func (v *Vault) committed(ctx context.Context, name string, opID uuid.UUID, op *operation) {
	entry := log.WithFields(log.Fields{
		"op":     name,
		"op_id":  opID,
		"caller": op.caller,
	})
	if op.state != nil {
		entry = entry.WithField("version", op.state.Version)
		if v.metrics != nil {
			v.metrics.Version.Set(float64(op.state.Version))
			v.metrics.TotalDeposits.Set(op.state.V1.TotalDeposits.InexactFloat64())
		}
	}
	if name == "upgrade" {
		entry.Info("vault upgraded")
	} else {
		entry.Debug("vault operation committed")
	}

	if v.publisher == nil {
		return
	}
	for _, e := range op.events {
		if err := v.publisher.Publish(ctx, v.topic, e); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"event": e.Type,
				"id":    e.ID,
			}).Warn("failed to publish vault event")
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch errors.Kind(err) {
	case errors.ErrUnauthorized:
		return "unauthorized"
	case errors.ErrState:
		return "state"
	case errors.ErrInput:
		return "input"
	case errors.ErrPolicy:
		return "policy"
	case errors.ErrCollaborator:
		return "collaborator"
	case errors.ErrStorage:
		return "storage"
	case errors.ErrNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// operation is the working set of a single call.
type operation struct {
	ctx      context.Context
	assetCtx context.Context
	vault    *Vault
	tx       interfaces.VaultTx
	now      time.Time
	caller   models.Address
	state    *models.State
	events   []events.VaultEvent
}

// load reads the vault state and checks that the active version is at least
// required.
func (o *operation) load(required models.Version) (*models.State, error) {
	st, err := o.tx.State(o.ctx)
	if err != nil {
		if errors.ErrNotFound.Is(err) {
			return nil, errors.Wrap(ErrNotInitialized, "vault")
		}
		return nil, errors.Wrap(err, "load state")
	}
	if st.Version < required {
		return nil, errors.Wrapf(ErrVersion, "requires version %d, active version is %d", required, st.Version)
	}
	o.state = st
	return st, nil
}

// save validates and stores the state loaded by load.
func (o *operation) save() error {
	if err := o.state.Validate(); err != nil {
		return errors.Wrapf(errors.ErrState, "corrupted state: %s", err)
	}
	return o.tx.PutState(o.ctx, o.state)
}

// account returns the owner's account, or a new empty one that is stored on
// first write.
func (o *operation) account(owner models.Address) (*models.Account, error) {
	acc, err := o.tx.Account(o.ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "load account")
	}
	if acc == nil {
		acc = &models.Account{
			Owner:     owner,
			Balance:   decimal.Zero,
			CreatedAt: o.now,
		}
	}
	return acc, nil
}

func (o *operation) entry(account models.Address, kind models.EntryKind, amount decimal.Decimal) error {
	return o.tx.SaveEntry(o.ctx, models.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: account,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: o.now,
	})
}

// credit increases the account balance and the total deposits by amount.
func (o *operation) credit(acc *models.Account, amount decimal.Decimal, kind models.EntryKind) error {
	acc.Balance = acc.Balance.Add(amount)
	o.state.V1.TotalDeposits = o.state.V1.TotalDeposits.Add(amount)
	if err := o.entry(acc.Owner, kind, amount); err != nil {
		return err
	}
	return o.tx.PutAccount(o.ctx, acc)
}

// debit decreases the account balance and the total deposits by amount.
func (o *operation) debit(acc *models.Account, amount decimal.Decimal, kind models.EntryKind) error {
	if acc.Balance.LessThan(amount) {
		return errors.Wrapf(ErrInsufficientBalance, "balance %s, requested %s", acc.Balance, amount)
	}
	acc.Balance = acc.Balance.Sub(amount)
	o.state.V1.TotalDeposits = o.state.V1.TotalDeposits.Sub(amount)
	if err := o.entry(acc.Owner, kind, amount.Neg()); err != nil {
		return err
	}
	return o.tx.PutAccount(o.ctx, acc)
}

// pull moves amount from the owner into custody.
func (o *operation) pull(from models.Address, amount decimal.Decimal) error {
	v := o.vault
	v.transferring.Store(true)
	defer v.transferring.Store(false)
	if err := v.asset.TransferFrom(o.assetCtx, v.custody, from, v.custody, amount); err != nil {
		return errors.Wrapf(errors.ErrCollaborator, "transfer %s from %s: %s", amount, from, err)
	}
	return nil
}

// push moves amount out of custody to the owner.
func (o *operation) push(to models.Address, amount decimal.Decimal) error {
	v := o.vault
	v.transferring.Store(true)
	defer v.transferring.Store(false)
	if err := v.asset.Transfer(o.assetCtx, v.custody, to, amount); err != nil {
		return errors.Wrapf(errors.ErrCollaborator, "transfer %s to %s: %s", amount, to, err)
	}
	return nil
}

func (o *operation) emit(e events.VaultEvent) {
	e.ID = uuid.NewString()
	e.Caller = o.caller.String()
	e.OccurredAt = o.now
	if o.state != nil {
		e.Version = uint32(o.state.Version)
	}
	o.events = append(o.events, e)
}
