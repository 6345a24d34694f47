package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/repositories"
	"go.uber.org/zap"
)

// Metrics receives engine measurements.
type Metrics interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	ObserveLockWait(elapsed time.Duration)
	ObserveFee(fee money.Amount)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) ObserveLockWait(time.Duration) {}
func (noopMetrics) ObserveFee(money.Amount) {}

type Option func(*Engine)

func WithFeePolicy(p FeePolicy) Option { return func(e *Engine) { e.fees = p } }
func WithLimitPolicy(p LimitPolicy) Option { return func(e *Engine) { e.limits = p } }
func WithLocker(l *AccountLocker) Option { return func(e *Engine) { e.locker = l } }
func WithRecorder(r *TransactionRecorder) Option { return func(e *Engine) { e.recorder = r } }
func WithClock(clock func() time.Time) Option { return func(e *Engine) { e.clock = clock } }
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches the caller's idempotency key so it is stored on the record.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

func idempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// Engine moves money between accounts.
// Every operation holds the account locks for its whole unit of work, so the balance
// change and its transaction record commit together or not at all.
type Engine struct {
	store    repositories.UnitOfWork
	locker   *AccountLocker
	limits   LimitPolicy
	fees     FeePolicy
	recorder *TransactionRecorder
	guard    AccessGuard
	clock    func() time.Time
	metrics  Metrics
	logger   *zap.Logger
}

func NewEngine(logger *zap.Logger, store repositories.UnitOfWork, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		limits:  PerAccountLimit{},
		fees:    FlatFee{Fee: DefaultTransferFee},
		clock:   time.Now,
		metrics: noopMetrics{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.locker == nil {
		e.locker = NewAccountLocker(DefaultLockTimeout)
	}
	if e.recorder == nil {
		e.recorder = NewTransactionRecorder(DefaultCancellationWindow, e.clock)
	}
	return e
}

// Locker is shared with collaborators that must serialize with money movement on an account.
func (e *Engine) Locker() *AccountLocker { return e.locker }

// Deposit credits amount to an account owned by actor.
func (e *Engine) Deposit(ctx context.Context, actor string, accountID int64, amount money.Amount) (trx models.Transaction, err error) {
	defer e.observe(ctx, "deposit", time.Now(), &err)
	if !amount.IsPositive() {
		return models.Transaction{}, InvalidAmount(amount)
	}
	release, err := e.lock(ctx, accountID)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	err = e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		account, err := e.loadOwned(ctx, tx, actor, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive() {
			return Inactive("account")
		}
		if err := account.Credit(amount); err != nil {
			return err
		}
		if err := e.save(ctx, tx, account); err != nil {
			return err
		}
		trx, err = e.recorder.Record(ctx, tx.Transactions(), Entry{
			Type:           pkg.TransactionTypeDeposit,
			Sender:         account.Account(),
			Receiver:       account.Account(),
			Amount:         amount,
			Fee:            money.Zero,
			IdempotencyKey: idempotencyKeyFrom(ctx),
		})
		return err
	})
	if err != nil {
		return models.Transaction{}, StoreError(err, NotFound("account"))
	}
	return trx, nil
}

// Withdraw debits amount from an account owned by actor, within its transfer limit.
func (e *Engine) Withdraw(ctx context.Context, actor string, accountID int64, amount money.Amount) (trx models.Transaction, err error) {
	defer e.observe(ctx, "withdraw", time.Now(), &err)
	if !amount.IsPositive() {
		return models.Transaction{}, InvalidAmount(amount)
	}
	release, err := e.lock(ctx, accountID)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	err = e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		account, err := e.loadOwned(ctx, tx, actor, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive() {
			return Inactive("account")
		}
		if err := e.limits.Validate(account, amount); err != nil {
			return err
		}
		if err := account.Debit(amount); err != nil {
			return err
		}
		if err := e.save(ctx, tx, account); err != nil {
			return err
		}
		trx, err = e.recorder.Record(ctx, tx.Transactions(), Entry{
			Type:           pkg.TransactionTypeWithdrawal,
			Sender:         account.Account(),
			Receiver:       account.Account(),
			Amount:         amount,
			Fee:            money.Zero,
			IdempotencyKey: idempotencyKeyFrom(ctx),
		})
		return err
	})
	if err != nil {
		return models.Transaction{}, StoreError(err, NotFound("account"))
	}
	return trx, nil
}

// Transfer moves amount from an account owned by actor to the account numbered receiverNumber.
// The sender pays amount plus the fee; the receiver gets amount.
func (e *Engine) Transfer(ctx context.Context, actor string, accountID int64, receiverNumber string, amount money.Amount) (trx models.Transaction, err error) {
	defer e.observe(ctx, "transfer", time.Now(), &err)
	if !amount.IsPositive() {
		return models.Transaction{}, InvalidAmount(amount)
	}
	if err := e.authorizeAccount(ctx, actor, accountID); err != nil {
		return models.Transaction{}, err
	}
	receiverID, err := e.resolveReceiver(ctx, receiverNumber)
	if err != nil {
		return models.Transaction{}, err
	}
	if receiverID == accountID {
		return models.Transaction{}, SameAccount()
	}

	release, err := e.lock(ctx, accountID, receiverID)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	var fee money.Amount
	err = e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		ledgers, err := e.loadForUpdate(ctx, tx, map[int64]error{
			accountID:  NotFound("account"),
			receiverID: ReceiverNotFound(),
		})
		if err != nil {
			return err
		}
		sender, receiver := ledgers[accountID], ledgers[receiverID]
		if err := e.guard.AuthorizeOwn(actor, sender.Account()); err != nil {
			return err
		}
		if !sender.IsActive() {
			return Inactive("sender")
		}
		if !receiver.IsActive() {
			return Inactive("receiver")
		}

		fee = e.fees.FeeFor(pkg.TransactionTypeTransfer, amount)
		total := amount.Add(fee)
		if err := e.limits.Validate(sender, total); err != nil {
			return err
		}
		if err := sender.Debit(total); err != nil {
			return err
		}
		if err := receiver.Credit(amount); err != nil {
			return err
		}
		if err := e.save(ctx, tx, sender, receiver); err != nil {
			return err
		}
		trx, err = e.recorder.Record(ctx, tx.Transactions(), Entry{
			Type:           pkg.TransactionTypeTransfer,
			Sender:         sender.Account(),
			Receiver:       receiver.Account(),
			Amount:         amount,
			Fee:            fee,
			IdempotencyKey: idempotencyKeyFrom(ctx),
		})
		return err
	})
	if err != nil {
		return models.Transaction{}, StoreError(err, NotFound("account"))
	}
	e.metrics.ObserveFee(fee)
	return trx, nil
}

// ListTransactions returns every record sent or received by an account owned by actor, oldest first.
func (e *Engine) ListTransactions(ctx context.Context, actor string, accountID int64) (summaries []TransactionSummary, err error) {
	defer e.observe(ctx, "list_transactions", time.Now(), &err)
	err = e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		account, err := tx.Accounts().FindByID(ctx, accountID)
		if err != nil {
			return StoreError(err, NotFound("account"))
		}
		if err := e.guard.AuthorizeOwn(actor, account); err != nil {
			return err
		}
		trxs, err := tx.Transactions().FindAllInvolving(ctx, accountID)
		if err != nil {
			return StoreError(err, NotFound("account"))
		}
		summaries = make([]TransactionSummary, 0, len(trxs))
		for _, trx := range trxs {
			summaries = append(summaries, summaryOf(trx))
		}
		return nil
	})
	if err != nil {
		return nil, StoreError(err, NotFound("account"))
	}
	return summaries, nil
}

// GetTransactionDetail returns one record to the owner of either side.
func (e *Engine) GetTransactionDetail(ctx context.Context, actor string, trxID uuid.UUID) (detail TransactionDetail, err error) {
	defer e.observe(ctx, "get_transaction", time.Now(), &err)
	err = e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		trx, err := tx.Transactions().FindByID(ctx, trxID)
		if err != nil {
			return StoreError(err, NotFound("transaction"))
		}
		sender, receiver, err := e.participants(ctx, tx, trx)
		if err != nil {
			return err
		}
		if err := e.guard.AuthorizeParticipant(actor, trx, sender, receiver); err != nil {
			return err
		}
		detail = detailOf(trx, e.cancellable(trx))
		return nil
	})
	if err != nil {
		return TransactionDetail{}, StoreError(err, NotFound("transaction"))
	}
	return detail, nil
}

// CancelTransaction flags a record owned (sender side) by actor as cancelled. Balances do not change.
func (e *Engine) CancelTransaction(ctx context.Context, actor string, trxID uuid.UUID) (cancelled models.Transaction, err error) {
	defer e.observe(ctx, "cancel", time.Now(), &err)
	original, err := e.peekTransaction(ctx, trxID)
	if err != nil {
		return models.Transaction{}, err
	}
	release, err := e.lock(ctx, original.SenderAccountID, original.ReceiverAccountID)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	err = e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		trx, err := tx.Transactions().FindByID(ctx, trxID)
		if err != nil {
			return StoreError(err, NotFound("transaction"))
		}
		if err := e.authorizeSender(ctx, tx, actor, trx); err != nil {
			return err
		}
		if trx.Type == pkg.TransactionTypeReversal {
			return NotCancellable("a reversal cannot be cancelled")
		}
		cancelled, err = e.recorder.Cancel(ctx, tx.Transactions(), trx)
		return err
	})
	if err != nil {
		return models.Transaction{}, StoreError(err, NotFound("transaction"))
	}
	return cancelled, nil
}

// ReverseTransaction cancels a record and books its inverse movement as a REVERSAL record.
// Limits and the active flag are not applied, but no balance may go negative.
func (e *Engine) ReverseTransaction(ctx context.Context, actor string, trxID uuid.UUID) (result Reversal, err error) {
	defer e.observe(ctx, "reverse", time.Now(), &err)
	original, err := e.peekTransaction(ctx, trxID)
	if err != nil {
		return Reversal{}, err
	}
	if original.Type == pkg.TransactionTypeReversal {
		return Reversal{}, NotCancellable("a reversal cannot be reversed")
	}
	release, err := e.lock(ctx, original.SenderAccountID, original.ReceiverAccountID)
	if err != nil {
		return Reversal{}, err
	}
	defer release()

	err = e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		trx, err := tx.Transactions().FindByID(ctx, trxID)
		if err != nil {
			return StoreError(err, NotFound("transaction"))
		}
		if !e.cancellable(trx) {
			return NotCancellable("transaction is cancelled or outside the cancellation window")
		}
		ledgers, err := e.loadForUpdate(ctx, tx, map[int64]error{
			trx.SenderAccountID:   NotFound("sender account"),
			trx.ReceiverAccountID: NotFound("receiver account"),
		})
		if err != nil {
			return err
		}
		sender, receiver := ledgers[trx.SenderAccountID], ledgers[trx.ReceiverAccountID]
		if err := e.guard.AuthorizeOwn(actor, sender.Account()); err != nil {
			return err
		}

		var debited, credited *AccountLedger
		refund := money.Zero
		switch trx.Type {
		case pkg.TransactionTypeDeposit:
			debited, credited = sender, sender
			err = sender.Debit(trx.Amount)
		case pkg.TransactionTypeWithdrawal:
			debited, credited = sender, sender
			err = sender.Credit(trx.Amount)
		case pkg.TransactionTypeTransfer:
			debited, credited, refund = receiver, sender, trx.Fee
			if err = receiver.Debit(trx.Amount); err == nil {
				err = sender.Credit(trx.Amount.Add(trx.Fee))
			}
		default:
			return NotCancellable("unsupported transaction type " + string(trx.Type))
		}
		if err != nil {
			return err
		}
		if err := e.save(ctx, tx, sender, receiver); err != nil {
			return err
		}
		if result.Original, err = e.recorder.Cancel(ctx, tx.Transactions(), trx); err != nil {
			return err
		}
		result.Reversal, err = e.recorder.Record(ctx, tx.Transactions(), Entry{
			Type:           pkg.TransactionTypeReversal,
			Sender:         debited.Account(),
			Receiver:       credited.Account(),
			Amount:         trx.Amount,
			Fee:            refund,
			IdempotencyKey: idempotencyKeyFrom(ctx),
			ReversalOf:     &trx.ID,
		})
		return err
	})
	if err != nil {
		return Reversal{}, StoreError(err, NotFound("transaction"))
	}
	return result, nil
}

func (e *Engine) lock(ctx context.Context, ids ...int64) (func(), error) {
	start := time.Now()
	release, err := e.locker.Lock(ctx, ids...)
	e.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		e.logger.Warn("account lock not acquired",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.Int64s("account_ids", ids),
			zap.Error(err))
		return nil, err
	}
	return release, nil
}

// authorizeAccount rejects a missing or foreign sender before anything is revealed about the receiver.
func (e *Engine) authorizeAccount(ctx context.Context, actor string, accountID int64) error {
	err := e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		account, err := tx.Accounts().FindByID(ctx, accountID)
		if err != nil {
			return StoreError(err, NotFound("account"))
		}
		return e.guard.AuthorizeOwn(actor, account)
	})
	return StoreError(err, NotFound("account"))
}

func (e *Engine) resolveReceiver(ctx context.Context, receiverNumber string) (int64, error) {
	var receiverID int64
	err := e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		receiver, err := tx.Accounts().FindByNumber(ctx, receiverNumber)
		if err != nil {
			return StoreError(err, ReceiverNotFound())
		}
		receiverID = receiver.ID
		return nil
	})
	return receiverID, StoreError(err, ReceiverNotFound())
}

func (e *Engine) peekTransaction(ctx context.Context, trxID uuid.UUID) (models.Transaction, error) {
	var trx models.Transaction
	err := e.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		trx, err = tx.Transactions().FindByID(ctx, trxID)
		return err
	})
	return trx, StoreError(err, NotFound("transaction"))
}

func (e *Engine) loadOwned(ctx context.Context, tx repositories.Tx, actor string, accountID int64) (*AccountLedger, error) {
	account, err := tx.Accounts().FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, StoreError(err, NotFound("account"))
	}
	if err := e.guard.AuthorizeOwn(actor, account); err != nil {
		return nil, err
	}
	return NewAccountLedger(account), nil
}

// loadForUpdate reads the accounts in ascending id order, mapping a missing id to its error.
func (e *Engine) loadForUpdate(ctx context.Context, tx repositories.Tx, missing map[int64]error) (map[int64]*AccountLedger, error) {
	ids := make([]int64, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	ledgers := make(map[int64]*AccountLedger, len(ids))
	for _, id := range sortedUnique(ids) {
		account, err := tx.Accounts().FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, StoreError(err, missing[id])
		}
		ledgers[id] = NewAccountLedger(account)
	}
	return ledgers, nil
}

// save writes each distinct ledger once, in ascending id order.
func (e *Engine) save(ctx context.Context, tx repositories.Tx, ledgers ...*AccountLedger) error {
	byID := make(map[int64]*AccountLedger, len(ledgers))
	ids := make([]int64, 0, len(ledgers))
	for _, l := range ledgers {
		byID[l.ID()] = l
		ids = append(ids, l.ID())
	}
	now := e.clock().UTC()
	for _, id := range sortedUnique(ids) {
		account := byID[id].Account()
		account.UpdatedAt = now
		if err := tx.Accounts().Save(ctx, &account); err != nil {
			return StoreError(err, NotFound("account"))
		}
	}
	return nil
}

func (e *Engine) participants(ctx context.Context, tx repositories.Tx, trx models.Transaction) (sender, receiver *models.Account, err error) {
	find := func(id int64) (*models.Account, error) {
		account, err := tx.Accounts().FindByID(ctx, id)
		if errors.Is(err, pkg.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, StoreError(err, nil)
		}
		return &account, nil
	}
	if sender, err = find(trx.SenderAccountID); err != nil {
		return nil, nil, err
	}
	if receiver, err = find(trx.ReceiverAccountID); err != nil {
		return nil, nil, err
	}
	return sender, receiver, nil
}

// authorizeSender allows only the owner of the sending account. A deleted sender has no owner.
func (e *Engine) authorizeSender(ctx context.Context, tx repositories.Tx, actor string, trx models.Transaction) error {
	sender, err := tx.Accounts().FindByID(ctx, trx.SenderAccountID)
	if err != nil {
		return StoreError(err, AccessDenied())
	}
	return e.guard.AuthorizeOwn(actor, sender)
}

func (e *Engine) cancellable(trx models.Transaction) bool {
	return trx.Type != pkg.TransactionTypeReversal && e.recorder.IsCancellable(trx, e.clock())
}

func (e *Engine) observe(ctx context.Context, operation string, start time.Time, err *error) {
	elapsed := time.Since(start)
	if *err != nil {
		code := pkg.CodeOf(*err)
		e.metrics.ObserveOperation(operation, code.Code, elapsed)
		return
	}
	e.metrics.ObserveOperation(operation, "ok", elapsed)
	e.logger.Debug("ledger operation committed",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.String("operation", operation),
		zap.Duration("elapsed", elapsed))
}
