package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wasil/internal/types"
)

// Store persists wallets and their ledger in Postgres. The escrow primitives
// run as one transaction each: a conditional counter update guarded in the
// WHERE clause plus the matching ledger write. Concurrent callers are
// serialized by the row-level write lock on the wallet row.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, owner types.ID) (*Wallet, error) {
	row := s.db.QueryRow(ctx, `
		SELECT owner_id, owner_kind, balance, on_hold, total_spent, total_earned, last_updated
		FROM wallets
		WHERE owner_id = $1`, string(owner),
	)
	var w Wallet
	err := row.Scan(&w.OwnerID, &w.OwnerKind, &w.Balance, &w.OnHold, &w.TotalSpent, &w.TotalEarned, &w.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) Hold(ctx context.Context, owner types.ID, amount int64, txn Transaction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var status TxStatus
		err := tx.QueryRow(ctx, `
			SELECT status FROM wallet_transactions
			WHERE owner_id = $1 AND method = $2 AND order_id = $3
			FOR UPDATE`,
			string(owner), string(MethodEscrow), string(txn.OrderID),
		).Scan(&status)
		if err == nil {
			// A hold for this order already exists; the retry is a no-op.
			return ErrAlreadyHeld
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE wallets
			SET on_hold = on_hold + $2, last_updated = NOW()
			WHERE owner_id = $1 AND balance - on_hold >= $2`,
			string(owner), amount,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			if _, gerr := s.Get(ctx, owner); gerr != nil {
				return gerr
			}
			return ErrInsufficientBalance
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			// Two concurrent holds can both pass the FOR UPDATE read before
			// either row exists; the loser then hits the escrow unique index.
			// Same no-op as a sequential retry.
			if isUniqueViolation(err) {
				return ErrAlreadyHeld
			}
			return err
		}
		return nil
	})
}

// Resolve terminates a pending escrow hold. outcome TxCompleted spends the
// held amount; TxReversed returns it to the available balance.
func (s *Store) Resolve(ctx context.Context, owner, orderID types.ID, amount int64, outcome TxStatus) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var id string
		var status TxStatus
		err := tx.QueryRow(ctx, `
			SELECT id, status FROM wallet_transactions
			WHERE owner_id = $1 AND method = $2 AND order_id = $3
			FOR UPDATE`,
			string(owner), string(MethodEscrow), string(orderID),
		).Scan(&id, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status == outcome {
			return ErrAlreadyResolved
		}
		if status != TxPending {
			return ErrEscrowResolved
		}

		var tag pgconn.CommandTag
		if outcome == TxCompleted {
			tag, err = tx.Exec(ctx, `
				UPDATE wallets
				SET balance = balance - $2,
				    on_hold = on_hold - $2,
				    total_spent = total_spent + $2,
				    last_updated = NOW()
				WHERE owner_id = $1 AND on_hold >= $2 AND balance >= $2`,
				string(owner), amount,
			)
		} else {
			tag, err = tx.Exec(ctx, `
				UPDATE wallets
				SET on_hold = on_hold - $2, last_updated = NOW()
				WHERE owner_id = $1 AND on_hold >= $2`,
				string(owner), amount,
			)
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("wallet %s: counters do not cover escrow amount %d", owner, amount)
		}

		_, err = tx.Exec(ctx,
			`UPDATE wallet_transactions SET status = $2 WHERE id = $1`,
			id, string(outcome),
		)
		return err
	})
}

// Adjust applies a non-escrow credit or debit together with its ledger row.
// Debits are guarded against the available balance in the WHERE clause.
func (s *Store) Adjust(ctx context.Context, owner types.ID, amount int64, dir Direction, txn Transaction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var tag pgconn.CommandTag
		var err error
		if dir == DirCredit {
			tag, err = tx.Exec(ctx, `
				UPDATE wallets
				SET balance = balance + $2,
				    total_earned = total_earned + $2,
				    last_updated = NOW()
				WHERE owner_id = $1`,
				string(owner), amount,
			)
		} else {
			tag, err = tx.Exec(ctx, `
				UPDATE wallets
				SET balance = balance - $2,
				    total_spent = total_spent + $2,
				    last_updated = NOW()
				WHERE owner_id = $1 AND balance - on_hold >= $2`,
				string(owner), amount,
			)
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			if _, gerr := s.Get(ctx, owner); gerr != nil {
				return gerr
			}
			if dir == DirDebit {
				return ErrInsufficientBalance
			}
			return ErrNotFound
		}
		return insertTransaction(ctx, tx, txn)
	})
}

func (s *Store) ListTransactions(ctx context.Context, owner types.ID, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, owner_kind, amount, direction, method, status,
		       description, bank_ref, COALESCE(order_id, ''), created_at
		FROM wallet_transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(owner), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID, &t.OwnerID, &t.OwnerKind, &t.Amount, &t.Direction, &t.Method,
			&t.Status, &t.Description, &t.BankRef, &t.OrderID, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallet_transactions (
			id, owner_id, owner_kind, amount, direction, method, status,
			description, bank_ref, order_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`,
		string(t.ID), string(t.OwnerID), string(t.OwnerKind), t.Amount,
		string(t.Direction), string(t.Method), string(t.Status),
		t.Description, t.BankRef, string(t.OrderID), t.CreatedAt,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
