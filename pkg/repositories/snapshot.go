package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

const snapshotVersion = 1

// Snapshot is the on-disk JSON form of a MemoryStore.
type Snapshot struct {
	Version       int                   `json:"version"`
	SavedAt       time.Time             `json:"savedAt"`
	LastAccountID int64                 `json:"lastAccountId"`
	Accounts      []SnapshotAccount     `json:"accounts"`
	Transactions  []SnapshotTransaction `json:"transactions"`
}

type SnapshotAccount struct {
	ID            int64        `json:"id"`
	AccountNumber string       `json:"accountNumber"`
	OwnerID       string       `json:"ownerId"`
	Balance       money.Amount `json:"balance"`
	TransferLimit money.Amount `json:"transferLimit"`
	IsActive      bool         `json:"isActive"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

type SnapshotTransaction struct {
	ID                    uuid.UUID           `json:"id"`
	Type                  pkg.TransactionType `json:"type"`
	SenderAccountID       int64               `json:"senderAccountId"`
	SenderAccountNumber   string              `json:"senderAccountNumber"`
	ReceiverAccountID     int64               `json:"receiverAccountId"`
	ReceiverAccountNumber string              `json:"receiverAccountNumber"`
	Amount                money.Amount        `json:"amount"`
	Fee                   money.Amount        `json:"fee"`
	IsCancelled           bool                `json:"isCancelled"`
	ReversalOf            *uuid.UUID          `json:"reversalOf,omitempty"`
	IdempotencyKey        string              `json:"idempotencyKey,omitempty"`
	CreatedAt             time.Time           `json:"createdAt"`
}

// Snapshot copies the committed state.
func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version:       snapshotVersion,
		LastAccountID: atomic.LoadInt64(&s.lastID),
		Accounts:      make([]SnapshotAccount, 0, len(s.accounts)),
		Transactions:  make([]SnapshotTransaction, 0, len(s.log)),
	}
	for _, a := range s.accounts {
		snap.Accounts = append(snap.Accounts, SnapshotAccount(a))
	}
	sort.Slice(snap.Accounts, func(i, j int) bool { return snap.Accounts[i].ID < snap.Accounts[j].ID })
	for _, id := range s.log {
		snap.Transactions = append(snap.Transactions, SnapshotTransaction(s.transactions[id]))
	}
	return snap
}

// Restore replaces the store content with snap. Balances are re-checked on the way in.
func (s *MemoryStore) Restore(snap Snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	accounts := make(map[int64]models.Account, len(snap.Accounts))
	byNumber := make(map[string]int64, len(snap.Accounts))
	lastID := snap.LastAccountID
	for _, sa := range snap.Accounts {
		if sa.Balance.IsNegative() {
			return fmt.Errorf("account %d: negative balance %s", sa.ID, sa.Balance)
		}
		if _, dup := byNumber[sa.AccountNumber]; dup {
			return fmt.Errorf("account number %s is not unique", sa.AccountNumber)
		}
		accounts[sa.ID] = models.Account(sa)
		byNumber[sa.AccountNumber] = sa.ID
		if sa.ID > lastID {
			lastID = sa.ID
		}
	}
	transactions := make(map[uuid.UUID]models.Transaction, len(snap.Transactions))
	log := make([]uuid.UUID, 0, len(snap.Transactions))
	for _, st := range snap.Transactions {
		if _, dup := transactions[st.ID]; dup {
			return fmt.Errorf("transaction %s is not unique", st.ID)
		}
		transactions[st.ID] = models.Transaction(st)
		log = append(log, st.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	s.byNumber = byNumber
	s.transactions = transactions
	s.log = log
	atomic.StoreInt64(&s.lastID, lastID)
	return nil
}

// LoadSnapshot reads a snapshot file. A missing file yields ok=false and no error.
func LoadSnapshot(path string) (snap Snapshot, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snap, true, nil
}

// SaveSnapshot writes snap to path+".tmp" and renames it over path.
func SaveSnapshot(path string, snap Snapshot) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	snap.SavedAt = time.Now().UTC()
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
