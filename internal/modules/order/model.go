// Package order owns the order aggregate, its state machine, and the command
// pipeline that drives every mutation.
package order

import (
	"time"

	"wasil/internal/types"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusPickedUp  Status = "picked_up"
	StatusOnTheWay  Status = "on_the_way"
	StatusArrived   Status = "arrived"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusReturned  Status = "returned"
	StatusRefunded  Status = "refunded"
	StatusFailed    Status = "failed"
)

// allowedTransitions is the legal-transition table; the pipeline consults it
// inside every command, and the store re-guards with a conditional update.
var allowedTransitions = map[Status][]Status{
	StatusCreated:   {StatusConfirmed, StatusCancelled, StatusFailed},
	StatusConfirmed: {StatusPreparing, StatusCancelled, StatusFailed},
	StatusPreparing: {StatusReady, StatusCancelled, StatusFailed},
	StatusReady:     {StatusPickedUp, StatusFailed},
	StatusPickedUp:  {StatusOnTheWay, StatusArrived, StatusDelivered, StatusFailed},
	StatusOnTheWay:  {StatusArrived, StatusDelivered, StatusFailed},
	StatusArrived:   {StatusDelivered, StatusFailed},
	StatusDelivered: {StatusReturned},
	StatusReturned:  {StatusRefunded},
}

func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status. delivered and
// returned each still have one legal exit and are not terminal here.
func IsTerminal(s Status) bool {
	return len(allowedTransitions[s]) == 0
}

type PaymentMethod string

const (
	PayCash   PaymentMethod = "cash"
	PayWallet PaymentMethod = "wallet"
	PayCard   PaymentMethod = "card"
	PayMixed  PaymentMethod = "mixed"
)

type Item struct {
	ProductID types.ID `json:"product_id"`
	StoreID   types.ID `json:"store_id"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
}

type Address struct {
	Label  string      `json:"label"`
	Street string      `json:"street"`
	City   string      `json:"city"`
	Point  types.Point `json:"point"`
}

// HistoryEntry is one append-only status record; the last entry always equals
// the order's current status.
type HistoryEntry struct {
	Status    Status     `json:"status"`
	At        time.Time  `json:"at"`
	ActorRole types.Role `json:"actor_role"`
	ActorID   types.ID   `json:"actor_id"`
}

type Proof struct {
	ImageRef   string    `json:"image_ref"`
	Signature  string    `json:"signature,omitempty"`
	UploadedBy types.ID  `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type NoteVisibility string

const (
	NotePublic   NoteVisibility = "public"
	NoteInternal NoteVisibility = "internal"
)

type Note struct {
	Body       string         `json:"body"`
	Visibility NoteVisibility `json:"visibility"`
	AuthorID   types.ID       `json:"author_id"`
	AuthorRole types.Role     `json:"author_role"`
	At         time.Time      `json:"at"`
}

type Order struct {
	ID            types.ID      `json:"id"`
	UserID        types.ID      `json:"user_id"`
	DriverID      *types.ID     `json:"driver_id,omitempty"`
	Items         []Item        `json:"items"`
	Price         int64         `json:"price"`
	DeliveryFee   int64         `json:"delivery_fee"`
	CompanyShare  int64         `json:"company_share"`
	PlatformShare int64         `json:"platform_share"`
	WalletUsed    int64         `json:"wallet_used"`
	CashDue       int64         `json:"cash_due"`
	Address       Address       `json:"address"`
	PaymentMethod PaymentMethod `json:"payment_method"`

	Status        Status         `json:"status"`
	StatusVersion int            `json:"status_version"`
	History       []HistoryEntry `json:"history"`

	CancelReason string     `json:"cancel_reason,omitempty"`
	CancelActor  types.Role `json:"cancel_actor,omitempty"`
	ReturnReason string     `json:"return_reason,omitempty"`
	Rating       int        `json:"rating,omitempty"`
	Proof        *Proof     `json:"proof,omitempty"`
	Notes        []Note     `json:"notes,omitempty"`

	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	DistanceKm  *float64   `json:"distance_km,omitempty"`
	EtaMinutes  *int       `json:"eta_minutes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// WalletInPlay reports whether escrow money rides on this order.
func (o *Order) WalletInPlay() bool {
	return (o.PaymentMethod == PayWallet || o.PaymentMethod == PayMixed) && o.WalletUsed > 0
}

// AssignedTo reports whether driverID is the order's assigned driver.
func (o *Order) AssignedTo(driverID types.ID) bool {
	return o.DriverID != nil && *o.DriverID == driverID
}
