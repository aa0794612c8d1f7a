package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// MemoryVaultStore is an in-memory implementation of interfaces.VaultStore.
// Writes of a transaction are staged and applied on success only, so a failed
// Update leaves the store untouched.
type MemoryVaultStore struct {
	mu          sync.RWMutex
	state       *models.State
	accounts    map[models.Address]models.Account
	checkpoints map[models.Address]models.YieldCheckpoint
	requests    map[models.Address]models.WithdrawalRequest
	entries     []models.LedgerEntry
}

// NewMemoryVaultStore creates and returns an empty MemoryVaultStore.
func NewMemoryVaultStore() *MemoryVaultStore {
	return &MemoryVaultStore{
		accounts:    make(map[models.Address]models.Account),
		checkpoints: make(map[models.Address]models.YieldCheckpoint),
		requests:    make(map[models.Address]models.WithdrawalRequest),
		entries:     make([]models.LedgerEntry, 0),
	}
}

// Update runs fn with exclusive access and commits its writes if fn
// succeeds.
func (m *MemoryVaultStore) Update(_ context.Context, fn func(tx interfaces.VaultTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newTx(m, false)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn with a read-only transaction.
func (m *MemoryVaultStore) View(ctx context.Context, fn func(tx interfaces.VaultTx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(newTx(m, true))
}

// memTx overlays staged writes on top of the committed data. A nil request
// pointer marks a deleted withdrawal request.
type memTx struct {
	store    *MemoryVaultStore
	readOnly bool

	state       *models.State
	accounts    map[models.Address]models.Account
	checkpoints map[models.Address]models.YieldCheckpoint
	requests    map[models.Address]*models.WithdrawalRequest
	entries     []models.LedgerEntry
}

func newTx(s *MemoryVaultStore, readOnly bool) *memTx {
	return &memTx{
		store:       s,
		readOnly:    readOnly,
		accounts:    make(map[models.Address]models.Account),
		checkpoints: make(map[models.Address]models.YieldCheckpoint),
		requests:    make(map[models.Address]*models.WithdrawalRequest),
	}
}

func (t *memTx) commit() {
	s := t.store
	if t.state != nil {
		s.state = t.state
	}
	for k, v := range t.accounts {
		s.accounts[k] = v
	}
	for k, v := range t.checkpoints {
		s.checkpoints[k] = v
	}
	for k, v := range t.requests {
		if v == nil {
			delete(s.requests, k)
			continue
		}
		s.requests[k] = *v
	}
	s.entries = append(s.entries, t.entries...)
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errors.Wrap(errors.ErrStorage, "read-only transaction")
	}
	return nil
}

func (t *memTx) State(_ context.Context) (*models.State, error) {
	st := t.state
	if st == nil {
		st = t.store.state
	}
	if st == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "vault state")
	}
	return st.Clone(), nil
}

func (t *memTx) PutState(_ context.Context, state *models.State) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state = state.Clone()
	return nil
}

func (t *memTx) Account(_ context.Context, owner models.Address) (*models.Account, error) {
	if a, ok := t.accounts[owner]; ok {
		return &a, nil
	}
	if a, ok := t.store.accounts[owner]; ok {
		return &a, nil
	}
	return nil, nil
}

func (t *memTx) PutAccount(_ context.Context, account *models.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.accounts[account.Owner] = *account
	return nil
}

// Accounts returns all accounts ordered by owner.
func (t *memTx) Accounts(_ context.Context) ([]models.Account, error) {
	merged := make(map[models.Address]models.Account, len(t.store.accounts)+len(t.accounts))
	for k, v := range t.store.accounts {
		merged[k] = v
	}
	for k, v := range t.accounts {
		merged[k] = v
	}

	result := make([]models.Account, 0, len(merged))
	for _, a := range merged {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Owner < result[j].Owner })
	return result, nil
}

func (t *memTx) YieldCheckpoint(_ context.Context, owner models.Address) (*models.YieldCheckpoint, error) {
	if cp, ok := t.checkpoints[owner]; ok {
		return &cp, nil
	}
	if cp, ok := t.store.checkpoints[owner]; ok {
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) PutYieldCheckpoint(_ context.Context, cp *models.YieldCheckpoint) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.checkpoints[cp.Owner] = *cp
	return nil
}

func (t *memTx) WithdrawalRequest(_ context.Context, owner models.Address) (*models.WithdrawalRequest, error) {
	if req, ok := t.requests[owner]; ok {
		if req == nil {
			return nil, nil
		}
		r := *req
		return &r, nil
	}
	if req, ok := t.store.requests[owner]; ok {
		return &req, nil
	}
	return nil, nil
}

func (t *memTx) PutWithdrawalRequest(_ context.Context, req *models.WithdrawalRequest) error {
	if err := t.writable(); err != nil {
		return err
	}
	r := *req
	t.requests[req.Owner] = &r
	return nil
}

func (t *memTx) DeleteWithdrawalRequest(_ context.Context, owner models.Address) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.requests[owner] = nil
	return nil
}

// SaveEntry appends a LedgerEntry to the journal.
func (t *memTx) SaveEntry(_ context.Context, entry models.LedgerEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.entries = append(t.entries, entry)
	return nil
}

func (t *memTx) GetEntriesByAccount(_ context.Context, accountID models.Address) ([]models.LedgerEntry, error) {
	var result []models.LedgerEntry
	for _, e := range t.allEntries() {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	return result, nil
}

// GetLedgerEntries returns a copy of all ledger entries so callers can't
// modify the journal.
func (t *memTx) GetLedgerEntries(_ context.Context) ([]models.LedgerEntry, error) {
	return t.allEntries(), nil
}

func (t *memTx) allEntries() []models.LedgerEntry {
	copied := make([]models.LedgerEntry, 0, len(t.store.entries)+len(t.entries))
	copied = append(copied, t.store.entries...)
	return append(copied, t.entries...)
}

// Compile-time check: ensure MemoryVaultStore implements VaultStore interface
var _ interfaces.VaultStore = (*MemoryVaultStore)(nil)
