package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wasil/internal/events"
	"wasil/internal/geo"
	"wasil/internal/types"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("order was modified concurrently")
	ErrForbidden         = errors.New("caller may not act on this order")
	ErrBadRequest        = errors.New("bad request")
	ErrDriverUnavailable = errors.New("driver is not available")
	// ErrInsufficientBalance mirrors the wallet sentinel for the pre-creation
	// availability check, before any hold is attempted.
	ErrInsufficientBalance = errors.New("insufficient available balance")
)

// Repo is the order persistence contract (implemented by *Store on Postgres).
type Repo interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, u StatusUpdate) (bool, error)
	SetRating(ctx context.Context, id types.ID, rating int) (bool, error)
	AddNote(ctx context.Context, id types.ID, n Note) error
	Delete(ctx context.Context, id types.ID) error
	ListByUser(ctx context.Context, userID types.ID) ([]Order, error)
	ListReady(ctx context.Context) ([]Order, error)
}

// WalletPort is the slice of the wallet coordinator the pipeline needs. At
// most one of these is invoked per command.
type WalletPort interface {
	Available(ctx context.Context, owner types.ID) (int64, error)
	Hold(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error
	Release(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error
	Refund(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error
	CreditReturn(ctx context.Context, owner types.ID, amount int64, orderID types.ID) error
}

// CachePort invalidates read caches; entries are dropped, never rewritten.
type CachePort interface {
	GetOrder(ctx context.Context, id types.ID, dst any) error
	SetOrder(ctx context.Context, id types.ID, v any) error
	GetUserOrders(ctx context.Context, userID types.ID, dst any) error
	SetUserOrders(ctx context.Context, userID types.ID, v any) error
	Invalidate(ctx context.Context, orderID, userID types.ID) error
}

// Publisher emits domain events after the write has landed.
type Publisher interface {
	Publish(ctx context.Context, e events.Event)
}

// DriverDirectory is the driver-service boundary used during assignment.
type DriverDirectory interface {
	Active(ctx context.Context, id types.ID) (bool, error)
	Location(ctx context.Context, id types.ID) (types.Point, bool, error)
}

// Service executes order commands: load, authorize, check the transition
// table, invoke at most one wallet primitive, persist through the CAS guard,
// invalidate caches, publish exactly one event.
type Service struct {
	repo    Repo
	wallet  WalletPort
	cache   CachePort
	bus     Publisher
	drivers DriverDirectory
	log     *logrus.Logger
}

func NewService(repo Repo, wallet WalletPort, cache CachePort, bus Publisher, drivers DriverDirectory, log *logrus.Logger) *Service {
	return &Service{repo: repo, wallet: wallet, cache: cache, bus: bus, drivers: drivers, log: log}
}

type CreateCommand struct {
	UserID        types.ID
	Items         []Item
	Address       Address
	PaymentMethod PaymentMethod
	Price         int64
	DeliveryFee   int64
	CompanyShare  int64
	PlatformShare int64
	WalletUsed    int64
}

type AssignDriverCommand struct {
	OrderID    types.ID
	DriverID   types.ID
	AssignedBy types.Identity
}

type StartDeliveryCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

type CompleteDeliveryCommand struct {
	OrderID  types.ID
	DriverID types.ID
	Proof    *Proof
}

type UpdateStatusCommand struct {
	OrderID   types.ID
	Status    Status
	ChangedBy types.Identity
	Reason    string
}

type CancelCommand struct {
	OrderID     types.ID
	Reason      string
	CancelledBy types.Identity
}

type ReturnCommand struct {
	OrderID    types.ID
	Reason     string
	ReturnedBy types.Identity
}

type RefundReturnedCommand struct {
	OrderID types.ID
	By      types.Identity
}

type RateCommand struct {
	OrderID types.ID
	UserID  types.ID
	Rating  int
}

type AddNoteCommand struct {
	OrderID    types.ID
	Body       string
	Visibility NoteVisibility
	Author     types.Identity
}

// Create validates the command, pre-checks wallet availability, inserts the
// order, then places the hold. A failed hold deletes the just-created row so
// creation is never left half-applied.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	usesWallet := (cmd.PaymentMethod == PayWallet || cmd.PaymentMethod == PayMixed) && cmd.WalletUsed > 0
	if usesWallet {
		available, err := s.wallet.Available(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("wallet availability: %w", err)
		}
		if available < cmd.WalletUsed {
			return nil, ErrInsufficientBalance
		}
	}

	now := time.Now()
	o := &Order{
		ID:            types.NewID(),
		UserID:        cmd.UserID,
		Items:         cmd.Items,
		Price:         cmd.Price,
		DeliveryFee:   cmd.DeliveryFee,
		CompanyShare:  cmd.CompanyShare,
		PlatformShare: cmd.PlatformShare,
		WalletUsed:    cmd.WalletUsed,
		CashDue:       cmd.Price + cmd.DeliveryFee - cmd.WalletUsed,
		Address:       cmd.Address,
		PaymentMethod: cmd.PaymentMethod,
		Status:        StatusCreated,
		History: []HistoryEntry{{
			Status:    StatusCreated,
			At:        now,
			ActorRole: types.RoleCustomer,
			ActorID:   cmd.UserID,
		}},
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if usesWallet {
		if err := s.wallet.Hold(ctx, cmd.UserID, cmd.WalletUsed, o.ID); err != nil {
			// Compensate: no orphaned unpaid orders.
			if derr := s.repo.Delete(ctx, o.ID); derr != nil {
				s.log.WithField("order", o.ID).WithError(derr).Error("compensating delete failed")
			}
			return nil, fmt.Errorf("wallet hold: %w", err)
		}
	}

	s.invalidate(ctx, o)
	s.bus.Publish(ctx, events.OrderCreated{Order: ref(o), At: now})
	return o, nil
}

// AssignDriver moves a ready order to picked_up, stamping the driver and the
// opportunistic straight-line distance/ETA when the driver's live location is
// known. It is never recomputed afterward.
func (s *Service) AssignDriver(ctx context.Context, cmd AssignDriverCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusReady {
		return nil, ErrInvalidTransition
	}

	active, err := s.drivers.Active(ctx, cmd.DriverID)
	if err != nil {
		return nil, fmt.Errorf("driver lookup: %w", err)
	}
	if !active {
		return nil, ErrDriverUnavailable
	}

	u := StatusUpdate{
		From:     StatusReady,
		To:       StatusPickedUp,
		Version:  o.StatusVersion,
		By:       cmd.AssignedBy,
		DriverID: &cmd.DriverID,
	}
	if loc, ok, lerr := s.drivers.Location(ctx, cmd.DriverID); lerr == nil && ok && !o.Address.Point.Zero() {
		dist := geo.HaversineKm(loc.Lat, loc.Lng, o.Address.Point.Lat, o.Address.Point.Lng)
		eta := geo.EtaMinutes(dist)
		u.DistanceKm = &dist
		u.EtaMinutes = &eta
	}

	updated, err := s.apply(ctx, o, u)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, events.DriverAssigned{
		Order:      ref(updated),
		DriverID:   cmd.DriverID,
		AssignedBy: cmd.AssignedBy,
		At:         time.Now(),
	})
	return updated, nil
}

// StartDelivery moves picked_up to on_the_way; only the assigned driver may call it.
func (s *Service) StartDelivery(ctx context.Context, cmd StartDeliveryCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.AssignedTo(cmd.DriverID) {
		return nil, ErrForbidden
	}
	if o.Status != StatusPickedUp {
		return nil, ErrInvalidTransition
	}

	by := types.Identity{ID: cmd.DriverID, Role: types.RoleDriver}
	updated, err := s.apply(ctx, o, StatusUpdate{
		From: StatusPickedUp, To: StatusOnTheWay, Version: o.StatusVersion, By: by,
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChanged(ctx, updated, StatusPickedUp, by)
	return updated, nil
}

// CompleteDelivery finishes the order and releases held wallet funds exactly
// once. A repeat call by the assigned driver on an already-delivered order
// retries the (idempotent) release instead of failing, so a crash between the
// status write and the wallet call can always be settled.
func (s *Service) CompleteDelivery(ctx context.Context, cmd CompleteDeliveryCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.AssignedTo(cmd.DriverID) {
		return nil, ErrForbidden
	}
	if o.Status == StatusDelivered {
		if err := s.settleDelivered(ctx, o); err != nil {
			return nil, err
		}
		return o, nil
	}
	if !CanTransition(o.Status, StatusDelivered) {
		return nil, ErrInvalidTransition
	}

	by := types.Identity{ID: cmd.DriverID, Role: types.RoleDriver}
	u := StatusUpdate{From: o.Status, To: StatusDelivered, Version: o.StatusVersion, By: by}
	if cmd.Proof != nil {
		p := *cmd.Proof
		p.UploadedBy = cmd.DriverID
		p.UploadedAt = time.Now()
		u.Proof = &p
	}
	from := o.Status
	updated, err := s.apply(ctx, o, u)
	if err != nil {
		return nil, err
	}

	s.publishStatusChanged(ctx, updated, from, by)
	if err := s.settleDelivered(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStatus handles the generic forward transitions. Cancellation, return
// and assignment have dedicated commands and are rejected here.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Order, error) {
	switch cmd.Status {
	case StatusConfirmed, StatusPreparing, StatusReady, StatusOnTheWay, StatusArrived, StatusDelivered:
	default:
		return nil, fmt.Errorf("%w: status %q requires its dedicated command", ErrBadRequest, cmd.Status)
	}

	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStatusChange(o, cmd); err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, cmd.Status) {
		return nil, ErrInvalidTransition
	}

	from := o.Status
	updated, err := s.apply(ctx, o, StatusUpdate{
		From: from, To: cmd.Status, Version: o.StatusVersion, By: cmd.ChangedBy,
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChanged(ctx, updated, from, cmd.ChangedBy)
	if cmd.Status == StatusDelivered {
		if err := s.settleDelivered(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// Cancel is legal only before pickup. Held funds are refunded, never released:
// cancellation returns reserved money, it does not spend it. A repeat cancel
// on an already-cancelled order retries the (idempotent) refund instead of
// failing, so a crash between the status write and the wallet call can always
// be settled.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if cmd.CancelledBy.Role == types.RoleCustomer && cmd.CancelledBy.ID != o.UserID {
		return nil, ErrForbidden
	}
	if o.Status == StatusCancelled {
		// Repeat cancel: settle any still-pending escrow and stop.
		if err := s.settleCancelled(ctx, o); err != nil {
			return nil, err
		}
		return o, nil
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	from := o.Status
	reason := cmd.Reason
	updated, err := s.apply(ctx, o, StatusUpdate{
		From: from, To: StatusCancelled, Version: o.StatusVersion,
		By: cmd.CancelledBy, Reason: &reason,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.OrderCancelled{
		Order:       ref(updated),
		Reason:      cmd.Reason,
		CancelledBy: cmd.CancelledBy,
		At:          time.Now(),
	})
	if err := s.settleCancelled(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Return records a customer return of a delivered order.
func (s *Service) Return(ctx context.Context, cmd ReturnCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if cmd.ReturnedBy.Role == types.RoleCustomer && cmd.ReturnedBy.ID != o.UserID {
		return nil, ErrForbidden
	}
	if o.Status != StatusDelivered {
		return nil, ErrInvalidTransition
	}

	from := o.Status
	reason := cmd.Reason
	updated, err := s.apply(ctx, o, StatusUpdate{
		From: from, To: StatusReturned, Version: o.StatusVersion,
		By: cmd.ReturnedBy, Reason: &reason,
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChanged(ctx, updated, from, cmd.ReturnedBy)
	return updated, nil
}

// RefundReturned closes out a returned order and credits the wallet portion
// back. The escrow is already settled by this point (released at delivery), so
// this is a plain credit, not an escrow reversal.
func (s *Service) RefundReturned(ctx context.Context, cmd RefundReturnedCommand) (*Order, error) {
	if !cmd.By.IsAdmin() {
		return nil, ErrForbidden
	}
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusReturned {
		return nil, ErrInvalidTransition
	}

	from := o.Status
	updated, err := s.apply(ctx, o, StatusUpdate{
		From: from, To: StatusRefunded, Version: o.StatusVersion, By: cmd.By,
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChanged(ctx, updated, from, cmd.By)
	if updated.WalletInPlay() {
		if err := s.wallet.CreditReturn(ctx, updated.UserID, updated.WalletUsed, updated.ID); err != nil {
			s.log.WithField("order", updated.ID).WithError(err).Error("return credit failed")
			return nil, fmt.Errorf("return credit: %w", err)
		}
	}
	return updated, nil
}

// Rate records the customer rating for a delivered order.
func (s *Service) Rate(ctx context.Context, cmd RateCommand) error {
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrBadRequest)
	}
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.UserID != cmd.UserID {
		return ErrForbidden
	}
	ok, err := s.repo.SetRating(ctx, cmd.OrderID, cmd.Rating)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	s.invalidate(ctx, o)
	return nil
}

// AddNote appends a note. No status change, no event.
func (s *Service) AddNote(ctx context.Context, cmd AddNoteCommand) error {
	if cmd.Body == "" {
		return fmt.Errorf("%w: empty note", ErrBadRequest)
	}
	if cmd.Visibility != NotePublic && cmd.Visibility != NoteInternal {
		return fmt.Errorf("%w: unknown note visibility %q", ErrBadRequest, cmd.Visibility)
	}
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	err = s.repo.AddNote(ctx, cmd.OrderID, Note{
		Body:       cmd.Body,
		Visibility: cmd.Visibility,
		AuthorID:   cmd.Author.ID,
		AuthorRole: cmd.Author.Role,
		At:         time.Now(),
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, o)
	return nil
}

// Get returns one order through the read cache. Only the owner, the assigned
// driver, and admins may see it.
func (s *Service) Get(ctx context.Context, id types.ID, viewer types.Identity) (*Order, error) {
	var cached Order
	if err := s.cache.GetOrder(ctx, id, &cached); err == nil {
		return authorizeView(&cached, viewer)
	}

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetOrder(ctx, id, o); err != nil {
		s.log.WithField("order", id).WithError(err).Warn("order cache set failed")
	}
	return authorizeView(o, viewer)
}

// ListByUser returns a user's orders through the read cache.
func (s *Service) ListByUser(ctx context.Context, userID types.ID, viewer types.Identity) ([]Order, error) {
	if !viewer.IsAdmin() && viewer.ID != userID {
		return nil, ErrForbidden
	}
	var cached []Order
	if err := s.cache.GetUserOrders(ctx, userID, &cached); err == nil {
		return cached, nil
	}
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetUserOrders(ctx, userID, list); err != nil {
		s.log.WithField("user", userID).WithError(err).Warn("order list cache set failed")
	}
	return list, nil
}

// ListReady exposes unassigned ready orders for driver matching.
func (s *Service) ListReady(ctx context.Context) ([]Order, error) {
	return s.repo.ListReady(ctx)
}

// apply runs the CAS update, refreshes the aggregate, and invalidates caches.
func (s *Service) apply(ctx context.Context, o *Order, u StatusUpdate) (*Order, error) {
	ok, err := s.repo.UpdateStatus(ctx, o.ID, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The guard missed: either a concurrent command moved the order on, or
		// the state we read is simply stale.
		cur, gerr := s.repo.Get(ctx, o.ID)
		if gerr == nil && cur.Status != u.From {
			return nil, ErrInvalidTransition
		}
		return nil, ErrConflict
	}
	updated, err := s.repo.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, updated)
	return updated, nil
}

// settleDelivered releases held funds for a delivered order; idempotent.
func (s *Service) settleDelivered(ctx context.Context, o *Order) error {
	if !o.WalletInPlay() {
		return nil
	}
	if err := s.wallet.Release(ctx, o.UserID, o.WalletUsed, o.ID); err != nil {
		s.log.WithField("order", o.ID).WithError(err).Error("wallet release failed")
		return fmt.Errorf("wallet release: %w", err)
	}
	return nil
}

// settleCancelled refunds held funds for a cancelled order; idempotent.
func (s *Service) settleCancelled(ctx context.Context, o *Order) error {
	if !o.WalletInPlay() {
		return nil
	}
	if err := s.wallet.Refund(ctx, o.UserID, o.WalletUsed, o.ID); err != nil {
		s.log.WithField("order", o.ID).WithError(err).Error("wallet refund failed")
		return fmt.Errorf("wallet refund: %w", err)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, o *Order) {
	if err := s.cache.Invalidate(ctx, o.ID, o.UserID); err != nil {
		s.log.WithField("order", o.ID).WithError(err).Warn("cache invalidation failed")
	}
}

func (s *Service) publishStatusChanged(ctx context.Context, o *Order, from Status, by types.Identity) {
	s.bus.Publish(ctx, events.OrderStatusChanged{
		Order:     ref(o),
		From:      string(from),
		To:        string(o.Status),
		ChangedBy: by,
		At:        time.Now(),
	})
}

func authorizeStatusChange(o *Order, cmd UpdateStatusCommand) error {
	switch cmd.ChangedBy.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleVendor:
		if cmd.Status == StatusConfirmed || cmd.Status == StatusPreparing || cmd.Status == StatusReady {
			return nil
		}
		return ErrForbidden
	case types.RoleDriver:
		if !o.AssignedTo(cmd.ChangedBy.ID) {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

func authorizeView(o *Order, viewer types.Identity) (*Order, error) {
	if viewer.IsAdmin() || viewer.ID == o.UserID || o.AssignedTo(viewer.ID) {
		return o, nil
	}
	return nil, ErrForbidden
}

func validateCreate(cmd CreateCommand) error {
	if cmd.UserID == "" || len(cmd.Items) == 0 {
		return fmt.Errorf("%w: user and items are required", ErrBadRequest)
	}
	for _, it := range cmd.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.UnitPrice < 0 {
			return fmt.Errorf("%w: bad line item", ErrBadRequest)
		}
	}
	switch cmd.PaymentMethod {
	case PayCash, PayWallet, PayCard, PayMixed:
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrBadRequest, cmd.PaymentMethod)
	}
	if cmd.Price < 0 || cmd.DeliveryFee < 0 || cmd.WalletUsed < 0 {
		return fmt.Errorf("%w: negative amount", ErrBadRequest)
	}
	if cmd.WalletUsed > 0 && cmd.PaymentMethod != PayWallet && cmd.PaymentMethod != PayMixed {
		return fmt.Errorf("%w: wallet amount on non-wallet payment", ErrBadRequest)
	}
	if cmd.WalletUsed > cmd.Price+cmd.DeliveryFee {
		return fmt.Errorf("%w: wallet amount exceeds order total", ErrBadRequest)
	}
	return nil
}

func ref(o *Order) events.OrderRef {
	r := events.OrderRef{OrderID: o.ID, UserID: o.UserID, Status: string(o.Status)}
	if o.DriverID != nil {
		r.DriverID = *o.DriverID
	}
	return r
}
