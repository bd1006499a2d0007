package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, type, amount_cents, description, category, date, tags, source, created_at, updated_at`

// FindTransactions returns the transactions matching filter ordered by date.
func (s *Store) FindTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	where, args := whereClause(filter)

	order := "ASC"
	if filter.Newest {
		order = "DESC"
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		` ORDER BY date ` + order + `, created_at ` + order + `, id ` + order

	switch {
	case filter.Limit > 0:
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	case filter.Offset > 0 && s.driver == DriverSQLite:
		// SQLite only accepts OFFSET after a LIMIT.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("FindTransactions: querying transactions: %w", err)
	}
	defer rows.Close()

	txs := []*domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("FindTransactions: scanning row: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindTransactions: iterating rows: %w", err)
	}
	return txs, nil
}

// CountTransactions counts the transactions matching filter.
func (s *Store) CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int, error) {
	where, args := whereClause(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM transactions`+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountTransactions: counting transactions: %w", err)
	}
	return n, nil
}

// GetTransaction returns one transaction owned by userID.
func (s *Store) GetTransaction(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`), id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: scanning transaction: %w", err)
	}
	return t, nil
}

// CreateTransaction inserts t and applies its signed amount to the owner's balance.
func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction) (decimal.Decimal, error) {
	if err := domain.ValidateTransaction(t); err != nil {
		return decimal.Zero, err
	}
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CreateTransaction: encoding tags: %w", err)
	}

	var balance decimal.Decimal
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// The delta goes first so a missing user aborts before the insert.
		var err error
		balance, err = s.applyDelta(ctx, tx, t.UserID, t.SignedAmount())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			t.ID, t.UserID, string(t.Type), toCents(t.Amount), t.Description, t.Category,
			t.Date.UTC(), tags, t.Source, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("CreateTransaction: %w", err)
	}
	return balance, nil
}

// UpdateTransaction applies mutate to the stored transaction and moves the
// balance by the change in its signed amount.
func (s *Store) UpdateTransaction(ctx context.Context, userID, id string, mutate store.Mutator) (*domain.Transaction, decimal.Decimal, error) {
	var (
		updated *domain.Transaction
		balance decimal.Decimal
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := s.lockTransaction(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		next := *old
		next.Tags = append([]string(nil), old.Tags...)
		if err := mutate(&next); err != nil {
			return err
		}
		next.ID, next.UserID, next.CreatedAt = old.ID, old.UserID, old.CreatedAt
		if err := domain.ValidateTransaction(&next); err != nil {
			return err
		}

		tags, err := encodeTags(next.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags: %w", err)
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`UPDATE transactions SET type = ?, amount_cents = ?, description = ?, category = ?,
			 date = ?, tags = ?, updated_at = ? WHERE id = ? AND user_id = ?`),
			string(next.Type), toCents(next.Amount), next.Description, next.Category,
			next.Date.UTC(), tags, next.UpdatedAt.UTC(), id, userID,
		)
		if err != nil {
			return fmt.Errorf("updating transaction: %w", err)
		}

		balance, err = s.applyDelta(ctx, tx, userID, next.SignedAmount().Sub(old.SignedAmount()))
		if err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("UpdateTransaction: %w", err)
	}
	return updated, balance, nil
}

// DeleteTransaction removes the transaction and reverses its signed amount.
func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := s.lockTransaction(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			`DELETE FROM transactions WHERE id = ? AND user_id = ?`), id, userID); err != nil {
			return fmt.Errorf("deleting transaction: %w", err)
		}
		balance, err = s.applyDelta(ctx, tx, userID, old.SignedAmount().Neg())
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("DeleteTransaction: %w", err)
	}
	return balance, nil
}

func (s *Store) lockTransaction(ctx context.Context, tx *sql.Tx, userID, id string) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx, s.rebind(
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`+s.forUpdate()), id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading transaction: %w", err)
	}
	return t, nil
}

func whereClause(filter domain.TransactionFilter) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{filter.UserID}

	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, filter.To.UTC())
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t     domain.Transaction
		typ   string
		cents int64
		tags  string
	)
	if err := row.Scan(&t.ID, &t.UserID, &typ, &cents, &t.Description, &t.Category,
		&t.Date, &tags, &t.Source, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(typ)
	t.Amount = fromCents(cents)
	t.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
	}
	return &t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
