// Package wallet owns user and driver balances. All mutations go through the
// service's five primitives; every mutation pairs with an immutable ledger row.
package wallet

import (
	"time"

	"wasil/internal/types"
)

type OwnerKind string

const (
	OwnerUser   OwnerKind = "user"
	OwnerDriver OwnerKind = "driver"
)

// Wallet tracks the counters for one owner. Invariant: OnHold <= Balance.
// Available funds are Balance - OnHold.
type Wallet struct {
	OwnerID     types.ID
	OwnerKind   OwnerKind
	Balance     int64
	OnHold      int64
	TotalSpent  int64
	TotalEarned int64
	LastUpdated time.Time
}

// Available is clamped to zero for display; authorization checks in the store
// validate strictly against the raw difference.
func (w Wallet) Available() int64 {
	if a := w.Balance - w.OnHold; a > 0 {
		return a
	}
	return 0
}

type Direction string

const (
	DirCredit Direction = "credit"
	DirDebit  Direction = "debit"
)

type Method string

const (
	MethodEscrow     Method = "escrow"
	MethodTransfer   Method = "transfer"
	MethodPayment    Method = "payment"
	MethodReward     Method = "reward"
	MethodWithdrawal Method = "withdrawal"
	MethodKuraimi    Method = "kuraimi"
	MethodCard       Method = "card"
	MethodAgent      Method = "agent"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
	TxReversed  TxStatus = "reversed"
)

// Transaction is one immutable ledger entry. Escrow entries carry the order id
// so a hold can be correlated with its eventual release or refund; for every
// hold exactly one of those two terminal outcomes may ever be recorded.
type Transaction struct {
	ID          types.ID
	OwnerID     types.ID
	OwnerKind   OwnerKind
	Amount      int64
	Direction   Direction
	Method      Method
	Status      TxStatus
	Description string
	BankRef     string
	OrderID     types.ID // escrow correlation key, empty otherwise
	CreatedAt   time.Time
}
