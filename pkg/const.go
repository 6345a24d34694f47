package pkg

const (
	HeaderTraceId        string = "X-Trace-Id"
	HeaderRequestId      string = "X-Request-Id"
	HeaderUserId         string = "X-User-Id"
	HeaderIdempotencyKey string = "Idempotency-Key"
)

// Context and log field keys.
const (
	TraceId        string = "trace_id"
	RequestId      string = "request_id"
	UserId         string = "user_id"
	AccountId      string = "account_id"
	TransactionId  string = "transaction_id"
	IdempotencyKey string = "idempotency_key"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeReversal   TransactionType = "REVERSAL"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer, TransactionTypeReversal:
		return true
	}
	return false
}

type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverPostgres StoreDriver = "postgres"
)
