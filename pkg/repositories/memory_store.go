package repositories

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

var (
	errDuplicate = pkg.NewAppError(pkg.ErrSQLDuplicateCode, "duplicate value violates unique constraint", pkg.ErrDuplicateRecord)
	errNegative  = pkg.NewAppError(pkg.ErrSQLConflictCode, "check constraint violated", pkg.SqlError)
)

// MemoryStore keeps accounts and transactions in process memory.
// Writes made inside WithTransaction are staged and applied under one lock at commit.
// The read lock is held while the unit of work runs, so every read inside it sees the
// same committed state and never a balance change without its transaction record.
// Isolation between concurrent writers on the same account is left to the caller's account locks.
type MemoryStore struct {
	mu           sync.RWMutex
	lastID       int64
	accounts     map[int64]models.Account
	byNumber     map[string]int64
	transactions map[uuid.UUID]models.Transaction
	log          []uuid.UUID // commit order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[int64]models.Account),
		byNumber:     make(map[string]int64),
		transactions: make(map[uuid.UUID]models.Transaction),
	}
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		store:     s,
		accounts:  make(map[int64]models.Account),
		created:   make(map[int64]struct{}),
		deleted:   make(map[int64]struct{}),
		cancelled: make(map[uuid.UUID]struct{}),
	}
	if err := s.read(ctx, tx, fn); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) read(ctx context.Context, tx *memoryTx, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, account := range tx.accounts {
		if _, isNew := tx.created[id]; isNew {
			if _, taken := s.byNumber[account.AccountNumber]; taken {
				return errDuplicate
			}
			continue
		}
		if _, ok := s.accounts[id]; !ok {
			return pkg.ErrRecordNotFound
		}
	}
	for id := range tx.deleted {
		if _, ok := s.accounts[id]; !ok {
			return pkg.ErrRecordNotFound
		}
	}
	for _, trx := range tx.trxs {
		if _, ok := s.transactions[trx.ID]; ok {
			return errDuplicate
		}
	}
	for id := range tx.cancelled {
		if _, ok := s.transactions[id]; !ok && !tx.stagesTransaction(id) {
			return pkg.ErrRecordNotFound
		}
	}

	for id, account := range tx.accounts {
		s.accounts[id] = account
		s.byNumber[account.AccountNumber] = id
	}
	for id := range tx.deleted {
		delete(s.byNumber, s.accounts[id].AccountNumber)
		delete(s.accounts, id)
	}
	for _, trx := range tx.trxs {
		s.transactions[trx.ID] = trx
		s.log = append(s.log, trx.ID)
	}
	for id := range tx.cancelled {
		trx := s.transactions[id]
		trx.IsCancelled = true
		s.transactions[id] = trx
	}
	return nil
}

// committedAccount and committedTransaction expect the caller to hold s.mu.
func (s *MemoryStore) committedAccount(id int64) (models.Account, bool) {
	account, ok := s.accounts[id]
	return account, ok
}

func (s *MemoryStore) committedTransaction(id uuid.UUID) (models.Transaction, bool) {
	trx, ok := s.transactions[id]
	return trx, ok
}

type memoryTx struct {
	store     *MemoryStore
	accounts  map[int64]models.Account // staged inserts and updates
	created   map[int64]struct{}
	deleted   map[int64]struct{}
	trxs      []models.Transaction
	cancelled map[uuid.UUID]struct{}
}

func (t *memoryTx) Accounts() AccountStore         { return memoryAccounts{t} }
func (t *memoryTx) Transactions() TransactionStore { return memoryTransactions{t} }

func (t *memoryTx) account(id int64) (models.Account, bool) {
	if _, gone := t.deleted[id]; gone {
		return models.Account{}, false
	}
	if account, ok := t.accounts[id]; ok {
		return account, true
	}
	return t.store.committedAccount(id)
}

func (t *memoryTx) stagesTransaction(id uuid.UUID) bool {
	for _, trx := range t.trxs {
		if trx.ID == id {
			return true
		}
	}
	return false
}

type memoryAccounts struct{ *memoryTx }

func (a memoryAccounts) FindByID(_ context.Context, id int64) (models.Account, error) {
	account, ok := a.account(id)
	if !ok {
		return models.Account{}, pkg.ErrRecordNotFound
	}
	return account, nil
}

func (a memoryAccounts) FindByIDForUpdate(ctx context.Context, id int64) (models.Account, error) {
	return a.FindByID(ctx, id)
}

func (a memoryAccounts) FindByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	for id, account := range a.accounts {
		if account.AccountNumber == accountNumber {
			return a.FindByID(ctx, id)
		}
	}
	id, ok := a.store.byNumber[accountNumber]
	if !ok {
		return models.Account{}, pkg.ErrRecordNotFound
	}
	return a.FindByID(ctx, id)
}

func (a memoryAccounts) FindByOwnerAndID(ctx context.Context, ownerID string, id int64) (models.Account, error) {
	account, err := a.FindByID(ctx, id)
	if err != nil {
		return models.Account{}, err
	}
	if account.OwnerID != ownerID {
		return models.Account{}, pkg.ErrRecordNotFound
	}
	return account, nil
}

func (a memoryAccounts) FindAllByOwner(_ context.Context, ownerID string) ([]models.Account, error) {
	owned := make(map[int64]models.Account)
	for id, account := range a.store.accounts {
		if account.OwnerID == ownerID {
			owned[id] = account
		}
	}
	for id, account := range a.accounts {
		if account.OwnerID == ownerID {
			owned[id] = account
		}
	}
	for id := range a.deleted {
		delete(owned, id)
	}

	accounts := make([]models.Account, 0, len(owned))
	for _, account := range owned {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (a memoryAccounts) Save(ctx context.Context, account *models.Account) error {
	if account.Balance.IsNegative() {
		return errNegative
	}
	if account.ID == 0 {
		if _, err := a.FindByNumber(ctx, account.AccountNumber); err == nil {
			return errDuplicate
		}
		account.ID = atomic.AddInt64(&a.store.lastID, 1)
		a.created[account.ID] = struct{}{}
		a.accounts[account.ID] = *account
		return nil
	}
	existing, ok := a.account(account.ID)
	if !ok {
		return pkg.ErrRecordNotFound
	}
	// number, owner and creation time never change after insert
	updated := existing
	updated.Balance = account.Balance
	updated.TransferLimit = account.TransferLimit
	updated.IsActive = account.IsActive
	updated.UpdatedAt = account.UpdatedAt
	a.accounts[account.ID] = updated
	return nil
}

func (a memoryAccounts) Delete(_ context.Context, id int64) error {
	if _, ok := a.account(id); !ok {
		return pkg.ErrRecordNotFound
	}
	if _, isNew := a.created[id]; isNew {
		delete(a.created, id)
		delete(a.accounts, id)
		return nil
	}
	delete(a.accounts, id)
	a.deleted[id] = struct{}{}
	return nil
}

type memoryTransactions struct{ *memoryTx }

func (t memoryTransactions) Save(_ context.Context, trx models.Transaction) error {
	if t.stagesTransaction(trx.ID) {
		return errDuplicate
	}
	if _, ok := t.store.committedTransaction(trx.ID); ok {
		return errDuplicate
	}
	t.trxs = append(t.trxs, trx)
	return nil
}

func (t memoryTransactions) FindByID(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	trx, ok := t.store.committedTransaction(id)
	if !ok {
		for _, staged := range t.trxs {
			if staged.ID == id {
				trx, ok = staged, true
				break
			}
		}
	}
	if !ok {
		return models.Transaction{}, pkg.ErrRecordNotFound
	}
	if _, cancelled := t.cancelled[id]; cancelled {
		trx.IsCancelled = true
	}
	return trx, nil
}

func (t memoryTransactions) FindAllInvolving(_ context.Context, accountID int64) ([]models.Transaction, error) {
	trxs := make([]models.Transaction, 0)
	for _, id := range t.store.log {
		if trx := t.store.transactions[id]; trx.Involves(accountID) {
			trxs = append(trxs, trx)
		}
	}
	for _, trx := range t.trxs {
		if trx.Involves(accountID) {
			trxs = append(trxs, trx)
		}
	}
	for i := range trxs {
		if _, cancelled := t.cancelled[trxs[i].ID]; cancelled {
			trxs[i].IsCancelled = true
		}
	}
	sort.SliceStable(trxs, func(i, j int) bool { return trxs[i].CreatedAt.Before(trxs[j].CreatedAt) })
	return trxs, nil
}

func (t memoryTransactions) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	trx, err := t.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if trx.IsCancelled {
		return pkg.ErrRecordNotFound
	}
	t.cancelled[id] = struct{}{}
	return nil
}
