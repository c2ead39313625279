package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wasil/internal/types"
)

// Store persists orders in Postgres. Status changes go through a conditional
// update on (id, status, status_version); the history row is written in the
// same transaction, so a committed transition always has its history entry.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// StatusUpdate carries one transition plus the fields it may set.
type StatusUpdate struct {
	From    Status
	To      Status
	Version int
	By      types.Identity

	DriverID   *types.ID
	Reason     *string
	Proof      *Proof
	DistanceKm *float64
	EtaMinutes *int
}

func (s *Store) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, price, delivery_fee, company_share, platform_share,
			wallet_used, cash_due, addr_label, addr_street, addr_city,
			addr_lat, addr_lng, payment_method, status, status_version, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)`,
		string(o.ID), string(o.UserID), o.Price, o.DeliveryFee, o.CompanyShare,
		o.PlatformShare, o.WalletUsed, o.CashDue, o.Address.Label, o.Address.Street,
		o.Address.City, o.Address.Point.Lat, o.Address.Point.Lng,
		string(o.PaymentMethod), string(o.Status), o.StatusVersion, o.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, store_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(o.ID), string(it.ProductID), string(it.StoreID), it.Name, it.Quantity, it.UnitPrice,
		)
		if err != nil {
			return err
		}
	}

	for _, h := range o.History {
		if err := appendHistory(ctx, tx, o.ID, h); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, driver_id, price, delivery_fee, company_share,
		       platform_share, wallet_used, cash_due, addr_label, addr_street,
		       addr_city, addr_lat, addr_lng, payment_method, status,
		       status_version, cancel_reason, cancel_actor, return_reason,
		       rating, proof_image, proof_signature, proof_uploaded_by,
		       proof_uploaded_at, assigned_at, delivered_at, distance_km,
		       eta_minutes, created_at
		FROM orders WHERE id = $1`, string(id),
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	if o.Items, err = s.items(ctx, id); err != nil {
		return nil, err
	}
	if o.History, err = s.history(ctx, id); err != nil {
		return nil, err
	}
	if o.Notes, err = s.notes(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus applies u if and only if the order is still at (From, Version).
// Returns false when the guard missed, i.e. a concurrent command won.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, u StatusUpdate) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	var proofImage, proofSig *string
	var proofBy *string
	var proofAt *time.Time
	if u.Proof != nil {
		proofImage, proofSig = &u.Proof.ImageRef, &u.Proof.Signature
		by := string(u.Proof.UploadedBy)
		proofBy = &by
		proofAt = &u.Proof.UploadedAt
	}
	var driverID *string
	if u.DriverID != nil {
		d := string(*u.DriverID)
		driverID = &d
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = COALESCE($2, driver_id),
		    assigned_at = CASE WHEN $1 = 'picked_up' THEN $3 ELSE assigned_at END,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN $3 ELSE delivered_at END,
		    cancel_reason = CASE WHEN $1 = 'cancelled' THEN COALESCE($4, cancel_reason) ELSE cancel_reason END,
		    cancel_actor = CASE WHEN $1 = 'cancelled' THEN $5 ELSE cancel_actor END,
		    return_reason = CASE WHEN $1 = 'returned' THEN COALESCE($4, return_reason) ELSE return_reason END,
		    proof_image = COALESCE($6, proof_image),
		    proof_signature = COALESCE($7, proof_signature),
		    proof_uploaded_by = COALESCE($8, proof_uploaded_by),
		    proof_uploaded_at = COALESCE($9, proof_uploaded_at),
		    distance_km = COALESCE($10, distance_km),
		    eta_minutes = COALESCE($11, eta_minutes)
		WHERE id = $12 AND status = $13 AND status_version = $14`,
		string(u.To), driverID, now, u.Reason, string(u.By.Role),
		proofImage, proofSig, proofBy, proofAt, u.DistanceKm, u.EtaMinutes,
		string(id), string(u.From), u.Version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	err = appendHistory(ctx, tx, id, HistoryEntry{
		Status:    u.To,
		At:        now,
		ActorRole: u.By.Role,
		ActorID:   u.By.ID,
	})
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// SetRating stores the rating; guarded on delivered status in the WHERE clause.
func (s *Store) SetRating(ctx context.Context, id types.ID, rating int) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET rating = $1 WHERE id = $2 AND status = 'delivered'`,
		rating, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AddNote(ctx context.Context, id types.ID, n Note) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_notes (order_id, body, visibility, author_id, author_role, at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(id), n.Body, string(n.Visibility), string(n.AuthorID), string(n.AuthorRole), n.At,
	)
	return err
}

// Delete removes an order outright. Only the creation flow uses this, to
// compensate a failed wallet hold; cancellation is a status transition.
func (s *Store) Delete(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, string(id))
	return err
}

func (s *Store) ListByUser(ctx context.Context, userID types.ID) ([]Order, error) {
	return s.list(ctx, `
		SELECT id, user_id, driver_id, price, delivery_fee, company_share,
		       platform_share, wallet_used, cash_due, addr_label, addr_street,
		       addr_city, addr_lat, addr_lng, payment_method, status,
		       status_version, cancel_reason, cancel_actor, return_reason,
		       rating, proof_image, proof_signature, proof_uploaded_by,
		       proof_uploaded_at, assigned_at, delivered_at, distance_km,
		       eta_minutes, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC`, string(userID))
}

// ListReady returns orders waiting for a driver, oldest first.
func (s *Store) ListReady(ctx context.Context) ([]Order, error) {
	return s.list(ctx, `
		SELECT id, user_id, driver_id, price, delivery_fee, company_share,
		       platform_share, wallet_used, cash_due, addr_label, addr_street,
		       addr_city, addr_lat, addr_lng, payment_method, status,
		       status_version, cancel_reason, cancel_actor, return_reason,
		       rating, proof_image, proof_signature, proof_uploaded_by,
		       proof_uploaded_at, assigned_at, delivered_at, distance_km,
		       eta_minutes, created_at
		FROM orders WHERE status = 'ready'
		ORDER BY created_at ASC`)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Store) items(ctx context.Context, id types.ID) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT product_id, store_id, name, quantity, unit_price
		FROM order_items WHERE order_id = $1`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.StoreID, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) history(ctx context.Context, id types.ID) ([]HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, at, actor_role, actor_id
		FROM order_history WHERE order_id = $1
		ORDER BY id ASC`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.Status, &h.At, &h.ActorRole, &h.ActorID); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) notes(ctx context.Context, id types.ID) ([]Note, error) {
	rows, err := s.db.Query(ctx, `
		SELECT body, visibility, author_id, author_role, at
		FROM order_notes WHERE order_id = $1
		ORDER BY id ASC`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.Body, &n.Visibility, &n.AuthorID, &n.AuthorRole, &n.At); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func appendHistory(ctx context.Context, tx pgx.Tx, id types.ID, h HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_history (order_id, status, at, actor_role, actor_id)
		VALUES ($1, $2, $3, $4, $5)`,
		string(id), string(h.Status), h.At, string(h.ActorRole), string(h.ActorID),
	)
	return err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var driverID, cancelReason, cancelActor, returnReason *string
	var rating *int
	var proofImage, proofSig, proofBy *string
	var proofAt, assignedAt, deliveredAt *time.Time

	err := row.Scan(
		&o.ID, &o.UserID, &driverID, &o.Price, &o.DeliveryFee, &o.CompanyShare,
		&o.PlatformShare, &o.WalletUsed, &o.CashDue, &o.Address.Label,
		&o.Address.Street, &o.Address.City, &o.Address.Point.Lat,
		&o.Address.Point.Lng, &o.PaymentMethod, &o.Status, &o.StatusVersion,
		&cancelReason, &cancelActor, &returnReason, &rating, &proofImage,
		&proofSig, &proofBy, &proofAt, &assignedAt, &deliveredAt,
		&o.DistanceKm, &o.EtaMinutes, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	if cancelReason != nil {
		o.CancelReason = *cancelReason
	}
	if cancelActor != nil {
		o.CancelActor = types.Role(*cancelActor)
	}
	if returnReason != nil {
		o.ReturnReason = *returnReason
	}
	if rating != nil {
		o.Rating = *rating
	}
	if proofImage != nil {
		o.Proof = &Proof{ImageRef: *proofImage}
		if proofSig != nil {
			o.Proof.Signature = *proofSig
		}
		if proofBy != nil {
			o.Proof.UploadedBy = types.ID(*proofBy)
		}
		if proofAt != nil {
			o.Proof.UploadedAt = *proofAt
		}
	}
	o.AssignedAt = assignedAt
	o.DeliveredAt = deliveredAt
	return &o, nil
}
