package funds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperbroker/internal/model"
	"paperbroker/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrAccountNotFound    = errors.New("trading account not found")
)

// Service owns every mutation of trading account balances and the
// append-only transaction ledger. Balance, available margin and used margin
// are only ever changed through the methods below, always as atomic
// in-place SQL increments, so concurrent workers cannot lose updates.
//
// Invariant: balance == available_margin + used_margin.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) EnsureAccount(ctx context.Context, tx pgx.Tx, userID string) (model.TradingAccount, error) {
	acc, err := s.getAccount(ctx, tx, userID, true)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return acc, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO trading_accounts (user_id, balance, available_margin, used_margin, updated_at)
		VALUES ($1, 0, 0, 0, $2)
		RETURNING id, user_id, balance, available_margin, used_margin, updated_at
	`, userID, time.Now().UTC()).Scan(&acc.ID, &acc.UserID, &acc.Balance, &acc.AvailableMargin, &acc.UsedMargin, &acc.UpdatedAt)
	return acc, err
}

func (s *Service) GetAccount(ctx context.Context, userID string) (model.TradingAccount, error) {
	return s.getAccount(ctx, nil, userID, false)
}

func (s *Service) getAccount(ctx context.Context, tx pgx.Tx, userID string, forUpdate bool) (model.TradingAccount, error) {
	query := `
		SELECT id, user_id, balance, available_margin, used_margin, updated_at
		FROM trading_accounts
		WHERE user_id = $1
	`
	var row pgx.Row
	if tx != nil {
		if forUpdate {
			query += " FOR UPDATE"
		}
		row = tx.QueryRow(ctx, query, userID)
	} else {
		row = s.pool.QueryRow(ctx, query, userID)
	}
	var acc model.TradingAccount
	err := row.Scan(&acc.ID, &acc.UserID, &acc.Balance, &acc.AvailableMargin, &acc.UsedMargin, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return acc, ErrAccountNotFound
	}
	return acc, err
}

// BlockMargin moves amount from available to used margin. The WHERE guard
// makes the debit conditional: if available would go negative the update
// matches zero rows and the block fails before anything is persisted.
func (s *Service) BlockMargin(ctx context.Context, tx pgx.Tx, accountID string, amount decimal.Decimal, desc, ref string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("amount must be positive")
	}
	tag, err := tx.Exec(ctx, `
		UPDATE trading_accounts
		SET available_margin = available_margin - $1,
		    used_margin = used_margin + $1,
		    updated_at = $2
		WHERE id = $3 AND available_margin >= $1
	`, amount, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientMargin
	}
	return s.append(ctx, tx, accountID, types.TransactionDebit, amount, desc, ref)
}

// ReleaseMargin moves amount from used back to available margin.
func (s *Service) ReleaseMargin(ctx context.Context, tx pgx.Tx, accountID string, amount decimal.Decimal, desc, ref string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("amount must be positive")
	}
	_, err := tx.Exec(ctx, `
		UPDATE trading_accounts
		SET available_margin = available_margin + $1,
		    used_margin = used_margin - $1,
		    updated_at = $2
		WHERE id = $3
	`, amount, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	return s.append(ctx, tx, accountID, types.TransactionCredit, amount, desc, ref)
}

// ConsumeMargin spends a previously blocked amount: used margin and balance
// drop together, so the account identity is preserved. Used for brokerage
// and statutory charges at fill time.
func (s *Service) ConsumeMargin(ctx context.Context, tx pgx.Tx, accountID string, amount decimal.Decimal, desc, ref string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("amount must be positive")
	}
	_, err := tx.Exec(ctx, `
		UPDATE trading_accounts
		SET balance = balance - $1,
		    used_margin = used_margin - $1,
		    updated_at = $2
		WHERE id = $3
	`, amount, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	return s.append(ctx, tx, accountID, types.TransactionDebit, amount, desc, ref)
}

// SettlePnL applies realized profit or loss: balance and available margin
// move together. A loss never debits beyond the available margin; the
// remainder is absorbed (simulated venue, no negative-balance collections).
func (s *Service) SettlePnL(ctx context.Context, tx pgx.Tx, accountID string, pnl decimal.Decimal, desc, ref string) error {
	if pnl.IsZero() {
		return nil
	}
	if pnl.IsPositive() {
		_, err := tx.Exec(ctx, `
			UPDATE trading_accounts
			SET balance = balance + $1,
			    available_margin = available_margin + $1,
			    updated_at = $2
			WHERE id = $3
		`, pnl, time.Now().UTC(), accountID)
		if err != nil {
			return err
		}
		return s.append(ctx, tx, accountID, types.TransactionCredit, pnl, desc, ref)
	}
	loss := pnl.Neg()
	acc, err := s.getAccountByID(ctx, tx, accountID)
	if err != nil {
		return err
	}
	debit := lossDebit(loss, acc.AvailableMargin)
	if debit.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	_, err = tx.Exec(ctx, `
		UPDATE trading_accounts
		SET balance = balance - $1,
		    available_margin = available_margin - $1,
		    updated_at = $2
		WHERE id = $3
	`, debit, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	return s.append(ctx, tx, accountID, types.TransactionDebit, debit, desc, ref)
}

// lossDebit caps a realized loss at the account's available margin. The
// venue is simulated and never collects a negative balance; the excess of
// a loss over available margin is absorbed rather than debited.
func lossDebit(loss, available decimal.Decimal) decimal.Decimal {
	if loss.GreaterThan(available) {
		return available
	}
	return loss
}

// AdjustBalance shifts balance and available margin by a signed delta
// without the loss clamp. Admin-only path; the caller audit-logs it.
func (s *Service) AdjustBalance(ctx context.Context, tx pgx.Tx, accountID string, delta decimal.Decimal, desc, ref string) error {
	if delta.IsZero() {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE trading_accounts
		SET balance = balance + $1,
		    available_margin = available_margin + $1,
		    updated_at = $2
		WHERE id = $3
	`, delta, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	kind := types.TransactionCredit
	amount := delta
	if delta.IsNegative() {
		kind = types.TransactionDebit
		amount = delta.Neg()
	}
	return s.append(ctx, tx, accountID, kind, amount, desc, ref)
}

func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, desc string) (model.TradingAccount, error) {
	return s.fundOp(ctx, userID, amount, desc, true)
}

func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, desc string) (model.TradingAccount, error) {
	return s.fundOp(ctx, userID, amount, desc, false)
}

func (s *Service) fundOp(ctx context.Context, userID string, amount decimal.Decimal, desc string, credit bool) (model.TradingAccount, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.TradingAccount{}, errors.New("amount must be positive")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.TradingAccount{}, err
	}
	defer tx.Rollback(ctx)
	acc, err := s.EnsureAccount(ctx, tx, userID)
	if err != nil {
		return acc, err
	}
	if credit {
		_, err = tx.Exec(ctx, `
			UPDATE trading_accounts
			SET balance = balance + $1, available_margin = available_margin + $1, updated_at = $2
			WHERE id = $3
		`, amount, time.Now().UTC(), acc.ID)
		if err != nil {
			return acc, err
		}
		if err := s.append(ctx, tx, acc.ID, types.TransactionCredit, amount, desc, uuid.NewString()); err != nil {
			return acc, err
		}
	} else {
		tag, execErr := tx.Exec(ctx, `
			UPDATE trading_accounts
			SET balance = balance - $1, available_margin = available_margin - $1, updated_at = $2
			WHERE id = $3 AND available_margin >= $1
		`, amount, time.Now().UTC(), acc.ID)
		if execErr != nil {
			return acc, execErr
		}
		if tag.RowsAffected() == 0 {
			return acc, ErrInsufficientMargin
		}
		if err := s.append(ctx, tx, acc.ID, types.TransactionDebit, amount, desc, uuid.NewString()); err != nil {
			return acc, err
		}
	}
	acc, err = s.getAccountByID(ctx, tx, acc.ID)
	if err != nil {
		return acc, err
	}
	return acc, tx.Commit(ctx)
}

func (s *Service) getAccountByID(ctx context.Context, tx pgx.Tx, accountID string) (model.TradingAccount, error) {
	var acc model.TradingAccount
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, balance, available_margin, used_margin, updated_at
		FROM trading_accounts
		WHERE id = $1
	`, accountID).Scan(&acc.ID, &acc.UserID, &acc.Balance, &acc.AvailableMargin, &acc.UsedMargin, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return acc, ErrAccountNotFound
	}
	return acc, err
}

func (s *Service) ListTransactions(ctx context.Context, accountID string, before *time.Time, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, type, amount, description, ref, created_at
		FROM transactions
		WHERE account_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, accountID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.AccountID, &kind, &t.Amount, &t.Description, &t.Ref, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = types.TransactionType(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}

// append writes one ledger row. Transactions are never updated or deleted
// outside the admin cascade path.
func (s *Service) append(ctx context.Context, tx pgx.Tx, accountID string, kind types.TransactionType, amount decimal.Decimal, desc, ref string) error {
	if ref == "" {
		ref = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (account_id, type, amount, description, ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, accountID, string(kind), amount, desc, ref, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}
