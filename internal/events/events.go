// Package events carries order domain events between the command pipeline and
// its side-effect handlers. Every event has an explicit payload struct; the
// bus never transports untyped maps.
package events

import (
	"time"

	"wasil/internal/types"
)

type Name string

const (
	OrderCreatedName       Name = "order.created"
	OrderStatusChangedName Name = "order.status_changed"
	DriverAssignedName     Name = "order.driver_assigned"
	OrderCancelledName     Name = "order.cancelled"
)

type Event interface {
	Name() Name
}

// OrderRef is the slice of the aggregate every handler needs to route the
// event; handlers re-fetch the full order if they want more.
type OrderRef struct {
	OrderID  types.ID
	UserID   types.ID
	DriverID types.ID // empty when unassigned
	Status   string
}

type OrderCreated struct {
	Order OrderRef
	At    time.Time
}

type OrderStatusChanged struct {
	Order     OrderRef
	From      string
	To        string
	ChangedBy types.Identity
	At        time.Time
}

type DriverAssigned struct {
	Order      OrderRef
	DriverID   types.ID
	AssignedBy types.Identity
	At         time.Time
}

type OrderCancelled struct {
	Order       OrderRef
	Reason      string
	CancelledBy types.Identity
	At          time.Time
}

func (OrderCreated) Name() Name       { return OrderCreatedName }
func (OrderStatusChanged) Name() Name { return OrderStatusChangedName }
func (DriverAssigned) Name() Name     { return DriverAssignedName }
func (OrderCancelled) Name() Name     { return OrderCancelledName }
