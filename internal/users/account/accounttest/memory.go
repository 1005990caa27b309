// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package accounttest provides an in-memory [account.Store] for unit tests.

MemoryStore mirrors the PostgreSQL semantics the credential components rely
on: writes inside WithTx are staged and become visible only on commit, and
every row touched by a transaction stays exclusively locked until the
transaction ends. Failures can be injected per operation to exercise
rollback paths.
*/
package accounttest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/users/account"
)

// Operation names accepted by [MemoryStore.FailOn].
const (
	OpCreate               = "Create"
	OpSetConfirmationToken = "SetConfirmationToken"
	OpSetResetToken        = "SetResetToken"
	OpUpdateDisplayName    = "UpdateDisplayName"
	OpLockByID             = "LockByID"
	OpMarkConfirmed        = "MarkConfirmed"
	OpUpdatePasswordHash   = "UpdatePasswordHash"
	OpClearResetToken      = "ClearResetToken"
	OpUpdateOTPLast        = "UpdateOTPLast"
	OpCommit               = "Commit"
)

type row struct {
	// lock is a one-slot semaphore so waiters can honour context cancellation.
	lock chan struct{}
	user *account.User
}

// MemoryStore is a concurrency-safe in-memory implementation of [account.Store].
type MemoryStore struct {
	mu       sync.Mutex
	rows     map[int64]*row
	nextID   int64
	failures map[string]error
}

var _ account.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:     make(map[int64]*row),
		failures: make(map[string]error),
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (store *MemoryStore) FailOn(op string, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err == nil {
		delete(store.failures, op)
		return
	}
	store.failures[op] = err
}

// Seed inserts user as-is, assigning an ID when it has none, and returns the stored copy.
func (store *MemoryStore) Seed(user *account.User) *account.User {
	store.mu.Lock()
	defer store.mu.Unlock()

	stored := user.Clone()
	stored.Password = ""
	if stored.ID == 0 {
		store.nextID++
		stored.ID = store.nextID
	} else if stored.ID > store.nextID {
		store.nextID = stored.ID
	}
	store.rows[stored.ID] = &row{lock: make(chan struct{}, 1), user: stored}

	return stored.Clone()
}

// Get returns the committed record, or nil.
func (store *MemoryStore) Get(id int64) *account.User {
	store.mu.Lock()
	defer store.mu.Unlock()

	if r, ok := store.rows[id]; ok {
		return r.user.Clone()
	}
	return nil
}

// # Store

func (store *MemoryStore) FindByID(_ context.Context, id int64) (*account.User, error) {
	if user := store.Get(id); user != nil {
		return user, nil
	}
	return nil, account.NotFound()
}

func (store *MemoryStore) FindByEmail(_ context.Context, email string) (*account.User, error) {
	return store.findWhere(func(u *account.User) bool { return strings.EqualFold(u.Email, email) })
}

func (store *MemoryStore) FindByConfirmationToken(_ context.Context, digest string) (*account.User, error) {
	if digest == "" {
		return nil, account.NotFound()
	}
	return store.findWhere(func(u *account.User) bool { return u.ConfirmationToken == digest })
}

func (store *MemoryStore) FindByResetToken(_ context.Context, digest string) (*account.User, error) {
	if digest == "" {
		return nil, account.NotFound()
	}
	return store.findWhere(func(u *account.User) bool { return u.ResetToken == digest })
}

func (store *MemoryStore) Create(_ context.Context, user *account.User) error {
	if err := store.failure(OpCreate); err != nil {
		return err
	}

	store.mu.Lock()
	for _, r := range store.rows {
		if strings.EqualFold(r.user.Email, user.Email) {
			store.mu.Unlock()
			return apperr.Conflict("User already exists")
		}
	}
	store.mu.Unlock()

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.ID = 0

	stored := store.Seed(user)
	user.ID = stored.ID
	return nil
}

func (store *MemoryStore) SetConfirmationToken(ctx context.Context, id int64, digest string, sentAt time.Time) error {
	return store.write(ctx, OpSetConfirmationToken, id, func(u *account.User) {
		u.ConfirmationToken = digest
		u.ConfirmationSentAt = &sentAt
	})
}

func (store *MemoryStore) SetResetToken(ctx context.Context, id int64, digest string, sentAt time.Time) error {
	return store.write(ctx, OpSetResetToken, id, func(u *account.User) {
		u.ResetToken = digest
		u.ResetSentAt = &sentAt
	})
}

func (store *MemoryStore) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	return store.write(ctx, OpUpdateDisplayName, id, func(u *account.User) {
		u.DisplayName = displayName
	})
}

// write waits for the row lock like an UPDATE statement would, then applies
// mutate to the committed record.
func (store *MemoryStore) write(ctx context.Context, op string, id int64, mutate func(*account.User)) error {
	if err := store.failure(op); err != nil {
		return err
	}

	r := store.row(id)
	if r == nil {
		return account.NotFound()
	}
	if err := acquire(ctx, r); err != nil {
		return err
	}
	defer func() { <-r.lock }()

	store.mu.Lock()
	defer store.mu.Unlock()

	next := r.user.Clone()
	mutate(next)
	next.UpdatedAt = time.Now().UTC()
	r.user = next

	return nil
}

/*
WithTx runs fn with a staged transaction.

Staged writes are applied only when fn returns nil and the commit succeeds.
Row locks taken through tx are released when WithTx returns, including on
panic.
*/
func (store *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx account.Tx) error) error {
	tx := &memoryTx{
		store:  store,
		held:   make(map[int64]*row),
		staged: make(map[int64]*account.User),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := store.failure(OpCommit); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for id, user := range tx.staged {
		store.rows[id].user = user
	}

	return nil
}

// # Transaction

type memoryTx struct {
	store  *MemoryStore
	held   map[int64]*row
	staged map[int64]*account.User
}

func (tx *memoryTx) LockByID(ctx context.Context, id int64) (*account.User, error) {
	if err := tx.store.failure(OpLockByID); err != nil {
		return nil, err
	}
	if err := tx.lock(ctx, id); err != nil {
		return nil, err
	}
	return tx.current(id).Clone(), nil
}

func (tx *memoryTx) MarkConfirmed(ctx context.Context, id int64, confirmedAt time.Time) error {
	return tx.write(ctx, OpMarkConfirmed, id, func(u *account.User) {
		u.ConfirmedAt = &confirmedAt
		u.ConfirmationToken = ""
		u.ConfirmationSentAt = nil
	})
}

func (tx *memoryTx) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return tx.write(ctx, OpUpdatePasswordHash, id, func(u *account.User) {
		u.PasswordHash = hash
	})
}

func (tx *memoryTx) ClearResetToken(ctx context.Context, id int64) error {
	return tx.write(ctx, OpClearResetToken, id, func(u *account.User) {
		u.ResetToken = ""
		u.ResetSentAt = nil
	})
}

func (tx *memoryTx) UpdateOTPLast(ctx context.Context, id int64, counter int64) error {
	return tx.write(ctx, OpUpdateOTPLast, id, func(u *account.User) {
		u.OTPLast = counter
	})
}

func (tx *memoryTx) write(ctx context.Context, op string, id int64, mutate func(*account.User)) error {
	if err := tx.store.failure(op); err != nil {
		return err
	}
	if err := tx.lock(ctx, id); err != nil {
		return err
	}

	next := tx.current(id).Clone()
	mutate(next)
	next.UpdatedAt = time.Now().UTC()
	tx.staged[id] = next

	return nil
}

// lock takes the row lock once per transaction.
func (tx *memoryTx) lock(ctx context.Context, id int64) error {
	if _, ok := tx.held[id]; ok {
		return nil
	}

	r := tx.store.row(id)
	if r == nil {
		return account.NotFound()
	}
	if err := acquire(ctx, r); err != nil {
		return err
	}
	tx.held[id] = r

	return nil
}

// current returns the staged version of a held row, or its committed state.
func (tx *memoryTx) current(id int64) *account.User {
	if user, ok := tx.staged[id]; ok {
		return user
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return tx.held[id].user.Clone()
}

func (tx *memoryTx) release() {
	for id, r := range tx.held {
		<-r.lock
		delete(tx.held, id)
	}
}

// # Helpers

func acquire(ctx context.Context, r *row) error {
	select {
	case r.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperr.Internal(ctx.Err())
	}
}

func (store *MemoryStore) row(id int64) *row {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.rows[id]
}

func (store *MemoryStore) failure(op string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.failures[op]
}

func (store *MemoryStore) findWhere(match func(*account.User) bool) (*account.User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, r := range store.rows {
		if match(r.user) {
			return r.user.Clone(), nil
		}
	}
	return nil, account.NotFound()
}
