// Ledger load seeder.
//
// Opens accounts for a set of synthetic owners, funds them, then fires random transfers
// between them through the public API.
//   - Concurrency is controlled by a fixed worker pool (-workers)
//   - Throughput is controlled by an RPS limiter (token bucket)
//   - Every money movement carries a fresh Idempotency-Key
//
// Example:
//
//	go run ./services/ledger-api/cmd/seed \
//	  -owners=50 -transfers=20000 -workers=100 -rps=500 -ledgerApiUrl=http://localhost:8080
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// --------- CLI flags ---------
var (
	noOfOwners     = flag.Int("owners", 10, "Number of synthetic account owners")
	noOfTransfers  = flag.Int("transfers", 100, "Total number of transfers to send")
	workers        = flag.Int("workers", 10, "Max in-flight HTTP requests (worker pool size)")
	rps            = flag.Int("rps", 100, "Global requests-per-second limit")
	rpsBurst       = flag.Int("rpsBurst", 0, "Burst size for the limiter (0 => equals rps)")
	initialDeposit = flag.String("deposit", "10000", "Opening deposit per account")
	transferLimit  = flag.String("limit", "5000", "Transfer limit per account")
	maxTransfer    = flag.Int("maxTransfer", 50, "Max whole units per transfer")
	ledgerAPIURL   = flag.String("ledgerApiUrl", "http://localhost:8080", "Ledger API base URL")
	httpTimeoutMs  = flag.Int("httpClientTimeoutMs", 4000, "Total HTTP client timeout (ms)")
)

type seedAccount struct {
	owner         string
	id            int64
	accountNumber string
}

type Seeder struct {
	apiURL     string
	workers    int
	limiter    *rate.Limiter
	httpClient *http.Client
	ctx        context.Context
	logger     *zap.Logger

	// metrics
	sent   int64
	ok     int64
	failed int64
}

func main() {
	flag.Parse()

	// logger
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync()

	if *rps <= 0 || *workers <= 0 || *noOfOwners < 2 {
		logger.Fatal("rps and workers must be positive and at least two owners are needed")
	}
	deposit, err := money.Parse(*initialDeposit)
	if err != nil {
		logger.Fatal("invalid deposit", zap.Error(err))
	}
	limit, err := money.Parse(*transferLimit)
	if err != nil {
		logger.Fatal("invalid limit", zap.Error(err))
	}
	burst := *rpsBurst
	if burst <= 0 {
		burst = *rps
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	seeder := &Seeder{
		apiURL:     *ledgerAPIURL,
		workers:    *workers,
		limiter:    rate.NewLimiter(rate.Limit(*rps), burst),
		httpClient: utils.NewHTTPClient(utils.WithClientTimeout(time.Duration(*httpTimeoutMs) * time.Millisecond)),
		ctx:        ctx,
		logger:     logger,
	}

	start := time.Now()
	accounts, err := seeder.openAccounts(*noOfOwners, limit, deposit)
	if err != nil {
		logger.Error("opening accounts failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("accounts opened", zap.Int("accounts", len(accounts)), zap.Duration("duration", time.Since(start)))

	seeder.Run(accounts, *noOfTransfers, *maxTransfer)
	logger.Info("seeding completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("sent", seeder.sent),
		zap.Int64("success", seeder.ok),
		zap.Int64("failed", seeder.failed),
	)
}

func (s *Seeder) openAccounts(owners int, limit, deposit money.Amount) ([]seedAccount, error) {
	accounts := make([]seedAccount, 0, owners)
	for i := 0; i < owners; i++ {
		owner := faker.Username() + "-" + uuid.NewString()[:8]
		var created struct {
			Data struct {
				AccountID     int64  `json:"accountId"`
				AccountNumber string `json:"accountNumber"`
			} `json:"data"`
		}
		if err := s.post(owner, "/api/v1/accounts", "", map[string]interface{}{"transferLimit": limit}, &created); err != nil {
			return nil, fmt.Errorf("create account for %s: %w", owner, err)
		}
		account := seedAccount{owner: owner, id: created.Data.AccountID, accountNumber: created.Data.AccountNumber}
		path := fmt.Sprintf("/api/v1/transactions/%d/deposit", account.id)
		if err := s.post(owner, path, uuid.NewString(), map[string]interface{}{"amount": deposit}, nil); err != nil {
			return nil, fmt.Errorf("fund account %s: %w", account.accountNumber, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Run sends total random transfers between accounts through the worker pool.
func (s *Seeder) Run(accounts []seedAccount, total, maxUnits int) {
	jobs := make(chan [2]seedAccount, s.workers)

	var wg sync.WaitGroup
	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			for pair := range jobs {
				// throttle by RPS before sending the request
				if err := s.limiter.Wait(s.ctx); err != nil {
					return
				}
				s.transfer(pair[0], pair[1], money.FromInt(int64(1+rand.Intn(maxUnits))))
			}
		}()
	}

enqueue:
	for i := 0; i < total; i++ {
		from := rand.Intn(len(accounts))
		to := (from + 1 + rand.Intn(len(accounts)-1)) % len(accounts)
		select {
		case <-s.ctx.Done():
			break enqueue
		case jobs <- [2]seedAccount{accounts[from], accounts[to]}:
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Seeder) transfer(from, to seedAccount, amount money.Amount) {
	atomic.AddInt64(&s.sent, 1)
	start := time.Now()
	path := fmt.Sprintf("/api/v1/transactions/%d/transfer", from.id)
	body := map[string]interface{}{"receiverAccountNumber": to.accountNumber, "amount": amount}
	if err := s.post(from.owner, path, uuid.NewString(), body, nil); err != nil {
		atomic.AddInt64(&s.failed, 1)
		s.logger.Warn("transfer failed", zap.String("from", from.accountNumber), zap.String("to", to.accountNumber), zap.Error(err))
		return
	}
	atomic.AddInt64(&s.ok, 1)
	s.logger.Debug("transfer sent", zap.String("from", from.accountNumber), zap.Duration("latency", time.Since(start)))
}

func (s *Seeder) post(owner, path, idempotencyKey string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(pkg.HeaderUserId, owner)
	if idempotencyKey != "" {
		req.Header.Set(pkg.HeaderIdempotencyKey, idempotencyKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var e pkg.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("status %d: %s %s (trace %s)", resp.StatusCode, e.Code, e.Message, resp.Header.Get(pkg.HeaderTraceId))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
