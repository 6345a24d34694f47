package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultLockTimeout bounds how long an operation waits for an account.
const DefaultLockTimeout = 2 * time.Second

// AccountLocker hands out one exclusive lock per account id.
// A lock is a buffered channel of size one so a waiter can give up on ctx or timeout.
// Entries are reference counted and dropped once nobody holds or waits for them.
type AccountLocker struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func NewAccountLocker(timeout time.Duration) *AccountLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &AccountLocker{entries: make(map[int64]*lockEntry), timeout: timeout}
}

// Lock acquires every id in ascending order, skipping duplicates.
// On failure nothing stays held and the error is Busy (or the ctx error wrapped in Busy).
// The returned release is safe to call more than once.
func (l *AccountLocker) Lock(ctx context.Context, ids ...int64) (release func(), err error) {
	ordered := sortedUnique(ids)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]int64, 0, len(ordered))
	for _, id := range ordered {
		if err := l.acquire(ctx, id); err != nil {
			l.releaseAll(held)
			return nil, Busy(err)
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

func (l *AccountLocker) acquire(ctx context.Context, id int64) error {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(id)
		return ctx.Err()
	}
}

func (l *AccountLocker) releaseAll(ids []int64) {
	for i := len(ids) - 1; i >= 0; i-- {
		l.mu.Lock()
		entry := l.entries[ids[i]]
		l.mu.Unlock()
		<-entry.ch
		l.unref(ids[i])
	}
}

func (l *AccountLocker) unref(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entries[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, id)
	}
}

// tracked reports how many account entries are in use; used by tests.
func (l *AccountLocker) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func sortedUnique(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
