package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

const userColumns = `id, name, email, currency, current_balance_cents, business_setup, created_at, updated_at`

// CreateUser inserts a new user with its current balance.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	setup, err := encodeBusinessSetup(u.BusinessSetup)
	if err != nil {
		return fmt.Errorf("CreateUser: encoding business setup: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Name, u.Email, u.Currency, toCents(u.CurrentBalance), setup,
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("CreateUser: inserting user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: scanning user: %w", err)
	}
	return u, nil
}

// ApplyBalanceDelta adds delta to the stored balance and returns the result.
func (s *Store) ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = s.applyDelta(ctx, tx, userID, delta)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyBalanceDelta: %w", err)
	}
	return balance, nil
}

// SetBalance overwrites the stored balance.
func (s *Store) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET current_balance_cents = ?, updated_at = ? WHERE id = ?`),
		toCents(balance), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("SetBalance: updating user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetBalance: reading rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewNotFound("user", userID)
	}
	return nil
}

// applyDelta increments the balance inside the database so that concurrent
// writers never overwrite each other.
func (s *Store) applyDelta(ctx context.Context, tx *sql.Tx, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var cents int64
	err := tx.QueryRowContext(ctx, s.rebind(
		`UPDATE users SET current_balance_cents = current_balance_cents + ?, updated_at = ?
		 WHERE id = ? RETURNING current_balance_cents`),
		toCents(delta), time.Now().UTC(), userID,
	).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, domain.NewNotFound("user", userID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("applying balance delta: %w", err)
	}
	return fromCents(cents), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u     domain.User
		cents int64
		setup sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Currency, &cents, &setup, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CurrentBalance = fromCents(cents)
	if setup.Valid && setup.String != "" {
		var bs domain.BusinessSetup
		if err := json.Unmarshal([]byte(setup.String), &bs); err != nil {
			return nil, fmt.Errorf("decoding business setup: %w", err)
		}
		u.BusinessSetup = &bs
	}
	return &u, nil
}

func encodeBusinessSetup(bs *domain.BusinessSetup) (sql.NullString, error) {
	if bs == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(bs)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
