// Package memstore is an in-memory stand-in for the Postgres repositories, used by package tests.
// Transactions are serialized: Begin waits for the previous transaction to finish, and Rollback
// restores the state captured at Begin, so every transaction is all-or-nothing.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/apperr"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/ledger"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

type state struct {
	users        map[uuid.UUID]models.User
	tasks        map[uuid.UUID]models.Task
	submissions  map[uuid.UUID]models.Submission
	withdrawals  map[uuid.UUID]models.Withdrawal
	transactions []models.Transaction
}

func (st *state) clone() *state {
	c := &state{
		users:        make(map[uuid.UUID]models.User, len(st.users)),
		tasks:        make(map[uuid.UUID]models.Task, len(st.tasks)),
		submissions:  make(map[uuid.UUID]models.Submission, len(st.submissions)),
		withdrawals:  make(map[uuid.UUID]models.Withdrawal, len(st.withdrawals)),
		transactions: append([]models.Transaction(nil), st.transactions...),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.tasks {
		c.tasks[k] = v
	}
	for k, v := range st.submissions {
		c.submissions[k] = v
	}
	for k, v := range st.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

// Store holds all tables. Use the typed views (Users, Tasks, ...) as repository implementations.
type Store struct {
	sem chan struct{}

	mu    sync.Mutex
	st    *state
	fails map[string]error
	skips map[string]bool
	begun int
	// audit rows are written outside transactions, so they are not part of the snapshot
	audit []models.AuditEntry
}

func New() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		st: &state{
			users:       map[uuid.UUID]models.User{},
			tasks:       map[uuid.UUID]models.Task{},
			submissions: map[uuid.UUID]models.Submission{},
			withdrawals: map[uuid.UUID]models.Withdrawal{},
		},
		fails: map[string]error{},
		skips: map[string]bool{},
	}
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// memTx satisfies pgx.Tx. Only Commit and Rollback are implemented; the repositories below never
// issue SQL through it.
type memTx struct {
	pgx.Tx
	store *Store
	snap  *state
	done  bool
}

// Begin blocks until no other transaction is open, then snapshots the state.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := s.failure("Begin"); err != nil {
		return nil, err
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begun++
	return &memTx{store: s, snap: s.st.clone()}, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	if err := t.store.failure("Commit"); err != nil {
		t.Rollback(ctx)
		return err
	}
	t.done = true
	<-t.store.sem
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	t.store.st = t.snap
	t.store.mu.Unlock()
	<-t.store.sem
	return nil
}

func (s *Store) check(tx pgx.Tx) error {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return apperr.Persistence("memstore", pgx.ErrTxClosed)
	}
	if mt.done {
		return pgx.ErrTxClosed
	}
	return nil
}

// FailNext makes the next call of op (a method name such as "InsertTransaction" or "Commit") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	s.fails[op] = err
	s.mu.Unlock()
}

func (s *Store) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fails[op]; ok {
		delete(s.fails, op)
		return err
	}
	return nil
}

// SkipNext makes the next guarded update op ("MarkReviewed" or "Resolve") match no rows, the way
// it does when another transaction changed the status first.
func (s *Store) SkipNext(op string) {
	s.mu.Lock()
	s.skips[op] = true
	s.mu.Unlock()
}

func (s *Store) skipped(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skips[op] {
		delete(s.skips, op)
		return true
	}
	return false
}

// Began reports how many transactions have been started.
func (s *Store) Began() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begun
}

// ---------------------------------------------------------------------------
// Fixtures and inspection
// ---------------------------------------------------------------------------

func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.KYCStatus == "" {
		u.KYCStatus = models.KYCNotSubmitted
	}
	s.st.users[u.ID] = u
}

func (s *Store) PutTask(t models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.tasks[t.ID] = t
}

func (s *Store) PutSubmission(sub models.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.submissions[sub.ID] = sub
}

func (s *Store) User(id uuid.UUID) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.users[id]
}

func (s *Store) Submission(id uuid.UUID) models.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.submissions[id]
}

func (s *Store) Withdrawal(id uuid.UUID) models.Withdrawal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.withdrawals[id]
}

// Transactions returns the user's ledger rows in insertion order.
func (s *Store) Transactions(userID uuid.UUID) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.st.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// LedgerSum is Σ credits − Σ debits for the user.
func (s *Store) LedgerSum(userID uuid.UUID) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range s.Transactions(userID) {
		sum = sum.Add(t.Signed())
	}
	return sum
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

func (s *Store) Users() *Users             { return &Users{s} }
func (s *Store) Tasks() *Tasks             { return &Tasks{s} }
func (s *Store) Submissions() *Submissions { return &Submissions{s} }
func (s *Store) Withdrawals() *Withdrawals { return &Withdrawals{s} }
func (s *Store) Ledger() *Ledger           { return &Ledger{s} }
func (s *Store) Audit() *Audit             { return &Audit{s} }

// Users ---------------------------------------------------------------------

type Users struct{ s *Store }

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return &u, nil
}

func (r *Users) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error) {
	if err := r.s.check(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Tasks ---------------------------------------------------------------------

type Tasks struct{ s *Store }

func (r *Tasks) GetByID(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	if err := r.s.check(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.st.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task")
	}
	return &t, nil
}

func (r *Tasks) ListActive(_ context.Context, userID uuid.UUID) ([]*models.TaskView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.TaskView{}
	for _, t := range r.s.st.tasks {
		if !t.Active {
			continue
		}
		v := &models.TaskView{Task: t}
		for _, sub := range r.s.st.submissions {
			if sub.TaskID != t.ID {
				continue
			}
			if sub.Status == models.SubmissionApproved {
				v.Completions++
			}
			if sub.UserID == userID {
				st := sub.Status
				v.UserStatus = &st
				v.RejectReason = sub.RejectReason
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Submissions ---------------------------------------------------------------

type Submissions struct{ s *Store }

func (r *Submissions) GetForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	if err := r.s.check(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.st.submissions[id]
	if !ok {
		return nil, apperr.NotFound("submission")
	}
	return &sub, nil
}

func (r *Submissions) GetByUserTaskForUpdate(_ context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (*models.Submission, error) {
	if err := r.s.check(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.st.submissions {
		if sub.UserID == userID && sub.TaskID == taskID {
			return &sub, nil
		}
	}
	return nil, apperr.NotFound("submission")
}

func (r *Submissions) Create(_ context.Context, tx pgx.Tx, sub *models.Submission) error {
	if err := r.s.check(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.st.submissions {
		if other.UserID == sub.UserID && other.TaskID == sub.TaskID {
			return apperr.Conflict(apperr.CodeDuplicate, "submission already exists")
		}
	}
	r.s.st.submissions[sub.ID] = *sub
	return nil
}

func (r *Submissions) Resubmit(_ context.Context, tx pgx.Tx, id uuid.UUID, proofRef string, at time.Time) (bool, error) {
	if err := r.s.check(tx); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.st.submissions[id]
	if !ok || sub.Status != models.SubmissionRejected {
		return false, nil
	}
	sub.Status = models.SubmissionPending
	sub.ProofRef = proofRef
	sub.SubmittedAt = at
	sub.ReviewedAt, sub.ReviewedBy, sub.RejectReason = nil, nil, nil
	r.s.st.submissions[id] = sub
	return true, nil
}

func (r *Submissions) MarkReviewed(_ context.Context, tx pgx.Tx, id uuid.UUID, status models.SubmissionStatus, reviewer string, reason *string, at time.Time) (bool, error) {
	if err := r.s.check(tx); err != nil {
		return false, err
	}
	if err := r.s.failure("MarkReviewed"); err != nil {
		return false, err
	}
	if r.s.skipped("MarkReviewed") {
		return false, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.st.submissions[id]
	if !ok || sub.Status != models.SubmissionPending {
		return false, nil
	}
	sub.Status = status
	sub.ReviewedBy = &reviewer
	sub.RejectReason = reason
	sub.ReviewedAt = &at
	r.s.st.submissions[id] = sub
	return true, nil
}

func (r *Submissions) CountApproved(_ context.Context, tx pgx.Tx, taskID uuid.UUID) (int, error) {
	if err := r.s.check(tx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, sub := range r.s.st.submissions {
		if sub.TaskID == taskID && sub.Status == models.SubmissionApproved {
			n++
		}
	}
	return n, nil
}

func (r *Submissions) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if err := r.s.failure("ListStalePending"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stale []models.Submission
	for _, sub := range r.s.st.submissions {
		if sub.Status == models.SubmissionPending && !sub.SubmittedAt.After(cutoff) {
			stale = append(stale, sub)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].SubmittedAt.Before(stale[j].SubmittedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]uuid.UUID, len(stale))
	for i, sub := range stale {
		ids[i] = sub.ID
	}
	return ids, nil
}

func (r *Submissions) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Submission, error) {
	return r.list(func(sub models.Submission) bool { return sub.UserID == userID }), nil
}

func (r *Submissions) ListByStatus(_ context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	return r.list(func(sub models.Submission) bool { return sub.Status == status }), nil
}

func (r *Submissions) list(keep func(models.Submission) bool) []*models.Submission {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Submission{}
	for _, sub := range r.s.st.submissions {
		if !keep(sub) {
			continue
		}
		if t, ok := r.s.st.tasks[sub.TaskID]; ok {
			sub.TaskTitle, sub.RewardAmount = t.Title, t.RewardAmount
		}
		sub.UserEmail = r.s.st.users[sub.UserID].Email
		out = append(out, &sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Withdrawals ---------------------------------------------------------------

type Withdrawals struct{ s *Store }

func (r *Withdrawals) HasPending(_ context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error) {
	if err := r.s.check(tx); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.st.withdrawals {
		if w.UserID == userID && w.Status == models.WithdrawalPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *Withdrawals) Create(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
	pending, err := r.HasPending(ctx, tx, w.UserID)
	if err != nil {
		return err
	}
	if pending {
		return apperr.Conflict(apperr.CodeDuplicate, "withdrawal already exists")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.withdrawals[w.ID] = *w
	return nil
}

func (r *Withdrawals) GetForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	if err := r.s.check(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.st.withdrawals[id]
	if !ok {
		return nil, apperr.NotFound("withdrawal")
	}
	return &w, nil
}

func (r *Withdrawals) Resolve(_ context.Context, tx pgx.Tx, id uuid.UUID, status models.WithdrawalStatus, processedBy string, reason *string, at time.Time) (bool, error) {
	if err := r.s.check(tx); err != nil {
		return false, err
	}
	if r.s.skipped("Resolve") {
		return false, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.st.withdrawals[id]
	if !ok || w.Status != models.WithdrawalPending {
		return false, nil
	}
	w.Status = status
	w.ProcessedBy = &processedBy
	w.RejectReason = reason
	w.ProcessedAt = &at
	r.s.st.withdrawals[id] = w
	return true, nil
}

func (r *Withdrawals) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Withdrawal, error) {
	return r.list(func(w models.Withdrawal) bool { return w.UserID == userID }), nil
}

func (r *Withdrawals) ListByStatus(_ context.Context, status models.WithdrawalStatus) ([]*models.Withdrawal, error) {
	return r.list(func(w models.Withdrawal) bool { return w.Status == status }), nil
}

func (r *Withdrawals) list(keep func(models.Withdrawal) bool) []*models.Withdrawal {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Withdrawal{}
	for _, w := range r.s.st.withdrawals {
		if keep(w) {
			w.UserEmail = r.s.st.users[w.UserID].Email
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Ledger --------------------------------------------------------------------

type Ledger struct{ s *Store }

var _ ledger.Store = (*Ledger)(nil)

func (r *Ledger) AddBalance(_ context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := r.s.check(tx); err != nil {
		return decimal.Zero, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[userID]
	if !ok {
		return decimal.Zero, apperr.NotFound("user")
	}
	u.WalletBalance = u.WalletBalance.Add(amount)
	r.s.st.users[userID] = u
	return u.WalletBalance, nil
}

func (r *Ledger) SubtractBalance(_ context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := r.s.check(tx); err != nil {
		return decimal.Zero, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[userID]
	if !ok {
		return decimal.Zero, apperr.NotFound("user")
	}
	if u.WalletBalance.LessThan(amount) {
		return decimal.Zero, apperr.InsufficientBalance()
	}
	u.WalletBalance = u.WalletBalance.Sub(amount)
	r.s.st.users[userID] = u
	return u.WalletBalance, nil
}

func (r *Ledger) InsertTransaction(_ context.Context, tx pgx.Tx, t *models.Transaction) error {
	if err := r.s.check(tx); err != nil {
		return err
	}
	if err := r.s.failure("InsertTransaction"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ReferenceID != nil && (t.Source == models.SourceTask || t.Source == models.SourceWithdrawalRefund) {
		for _, other := range r.s.st.transactions {
			if other.Source == t.Source && other.ReferenceID != nil && *other.ReferenceID == *t.ReferenceID {
				return apperr.Conflict(apperr.CodeDuplicate, "transaction already exists")
			}
		}
	}
	r.s.st.transactions = append(r.s.st.transactions, *t)
	return nil
}

func (r *Ledger) UpdateNote(_ context.Context, tx pgx.Tx, userID uuid.UUID, source models.TransactionSource, referenceID uuid.UUID, note string) error {
	if err := r.s.check(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, t := range r.s.st.transactions {
		if t.UserID == userID && t.Source == source && t.ReferenceID != nil && *t.ReferenceID == referenceID {
			r.s.st.transactions[i].Note = note
		}
	}
	return nil
}

func (r *Ledger) Balance(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[userID]
	if !ok {
		return decimal.Zero, apperr.NotFound("user")
	}
	return u.WalletBalance, nil
}

func (r *Ledger) Totals(_ context.Context, userID uuid.UUID) (*ledger.Totals, error) {
	out := &ledger.Totals{Credits: decimal.Zero, Debits: decimal.Zero}
	for _, t := range r.s.Transactions(userID) {
		if t.Type == models.TxCredit {
			out.Credits = out.Credits.Add(t.Amount)
		} else {
			out.Debits = out.Debits.Add(t.Amount)
		}
		out.Count++
	}
	return out, nil
}

func (r *Ledger) ListRecent(_ context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	all := r.s.Transactions(userID)
	out := []*models.Transaction{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		t := all[i]
		out = append(out, &t)
	}
	return out, nil
}

// Audit ---------------------------------------------------------------------

type Audit struct{ s *Store }

func (r *Audit) Insert(_ context.Context, e *models.AuditEntry) error {
	if err := r.s.failure("AuditInsert"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *e)
	return nil
}

func (r *Audit) ListRecent(_ context.Context, limit int) ([]*models.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.AuditEntry{}
	for i := len(r.s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.s.audit[i]
		out = append(out, &e)
	}
	return out, nil
}
