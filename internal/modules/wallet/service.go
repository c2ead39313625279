package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wasil/internal/types"
)

var (
	ErrNotFound            = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrBadAmount           = errors.New("amount must be positive")
	// ErrEscrowResolved: the hold was already terminated with the opposite
	// outcome; resolving it again the other way would double-settle the order.
	ErrEscrowResolved = errors.New("escrow already resolved")
	// ErrAlreadyHeld / ErrAlreadyResolved mark idempotent repeats; the service
	// treats them as success.
	ErrAlreadyHeld     = errors.New("escrow already held")
	ErrAlreadyResolved = errors.New("escrow already resolved with same outcome")
)

// Repo is the persistence contract the coordinator needs. *Store implements it
// on Postgres; tests supply an in-memory double with the same conditional
// semantics.
type Repo interface {
	Get(ctx context.Context, owner types.ID) (*Wallet, error)
	Hold(ctx context.Context, owner types.ID, amount int64, txn Transaction) error
	Resolve(ctx context.Context, owner, orderID types.ID, amount int64, outcome TxStatus) error
	Adjust(ctx context.Context, owner types.ID, amount int64, dir Direction, txn Transaction) error
	ListTransactions(ctx context.Context, owner types.ID, limit int) ([]Transaction, error)
}

// Service is the only component allowed to mutate wallet counters. Hold,
// Release and Refund stay separate primitives on purpose: a release is a
// spend, a refund is an un-reserve, and the ledger has to say which happened.
type Service struct {
	repo Repo
	log  *logrus.Logger
}

func NewService(repo Repo, log *logrus.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) Get(ctx context.Context, owner types.ID) (*Wallet, error) {
	return s.repo.Get(ctx, owner)
}

// Available returns balance minus holds, strictly (may go through zero checks
// upstream; display clamping happens on the model).
func (s *Service) Available(ctx context.Context, owner types.ID) (int64, error) {
	w, err := s.repo.Get(ctx, owner)
	if err != nil {
		return 0, err
	}
	return w.Balance - w.OnHold, nil
}

// Hold reserves amount against the owner's available balance for orderID.
// Retrying an already-placed hold succeeds without effect.
func (s *Service) Hold(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	err := s.repo.Hold(ctx, owner, amount, Transaction{
		ID:          types.NewID(),
		OwnerID:     owner,
		OwnerKind:   OwnerUser,
		Amount:      amount,
		Direction:   DirDebit,
		Method:      MethodEscrow,
		Status:      TxPending,
		Description: fmt.Sprintf("hold for order %s", orderID),
		OrderID:     orderID,
		CreatedAt:   time.Now(),
	})
	if errors.Is(err, ErrAlreadyHeld) {
		s.log.WithFields(logrus.Fields{"owner": owner, "order": orderID}).Debug("duplicate hold ignored")
		return nil
	}
	return err
}

// Release converts the hold for orderID into an actual spend.
func (s *Service) Release(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	err := s.repo.Resolve(ctx, owner, orderID, amount, TxCompleted)
	if errors.Is(err, ErrAlreadyResolved) {
		s.log.WithFields(logrus.Fields{"owner": owner, "order": orderID}).Debug("duplicate release ignored")
		return nil
	}
	return err
}

// Refund cancels the hold for orderID; the balance is untouched because the
// money was never actually spent.
func (s *Service) Refund(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	err := s.repo.Resolve(ctx, owner, orderID, amount, TxReversed)
	if errors.Is(err, ErrAlreadyResolved) {
		s.log.WithFields(logrus.Fields{"owner": owner, "order": orderID}).Debug("duplicate refund ignored")
		return nil
	}
	return err
}

// Credit adds funds outside escrow (topups, rewards, return credits).
func (s *Service) Credit(ctx context.Context, owner types.ID, amount int64, method Method, desc string) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	return s.repo.Adjust(ctx, owner, amount, DirCredit, Transaction{
		ID:          types.NewID(),
		OwnerID:     owner,
		Amount:      amount,
		Direction:   DirCredit,
		Method:      method,
		Status:      TxCompleted,
		Description: desc,
		CreatedAt:   time.Now(),
	})
}

// CreditReturn credits the wallet portion of a returned order back to its
// owner. The order's escrow was already released at delivery, so this is a
// plain payment credit correlated to the order only through its description.
func (s *Service) CreditReturn(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error {
	return s.Credit(ctx, owner, amount, MethodPayment, fmt.Sprintf("return credit for order %s", orderID))
}

// Transactions returns the owner's most recent ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, owner types.ID, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListTransactions(ctx, owner, limit)
}

// Debit removes funds outside escrow after re-validating the available balance.
func (s *Service) Debit(ctx context.Context, owner types.ID, amount int64, method Method, desc string) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	return s.repo.Adjust(ctx, owner, amount, DirDebit, Transaction{
		ID:          types.NewID(),
		OwnerID:     owner,
		Amount:      amount,
		Direction:   DirDebit,
		Method:      method,
		Status:      TxCompleted,
		Description: desc,
		CreatedAt:   time.Now(),
	})
}
