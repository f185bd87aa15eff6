package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInvalidAmount        = errors.New("amount must be > 0")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrTxConflict           = errors.New("transaction conflict, retry")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
)

// Actor is the authority under which an operation runs. Admin-only
// capabilities (overdraft bypass, price control, settings) are checked by the
// operation itself against this token, never against ambient state.
type Actor struct {
	UserID string
	Admin  bool
}

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindBuy        Kind = "buy"
	KindSell       Kind = "sell"
	KindExchange   Kind = "exchange"
	KindAirdrop    Kind = "airdrop"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Kind         Kind      `json:"kind"`
	Symbol       string    `json:"symbol"`
	AmountMicros int64     `json:"amount_micros"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type AssetBalance struct {
	Symbol       string `json:"symbol"`
	AmountMicros int64  `json:"amount_micros"`
}

type Service struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewService(db *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, log: logger}
}

// EnsureAccount creates the account row, the mandatory zero-balance quote and
// synthetic asset rows, and the economy row. Safe to call on every login.
func (s *Service) EnsureAccount(ctx context.Context, userID, email, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		username = usernameFromEmail(email)
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (user_id, email, username)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, email, username)
	if err != nil {
		return err
	}
	for _, symbol := range []string{QuoteSymbol, SyntheticSymbol} {
		if _, err := tx.Exec(ctx, `
			INSERT INTO assets (user_id, symbol, amount_micros)
			VALUES ($1, $2, 0)
			ON CONFLICT (user_id, symbol) DO NOTHING
		`, userID, symbol); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO economy (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) Balance(ctx context.Context, userID, symbol string) (int64, error) {
	var amount int64
	err := s.db.QueryRow(ctx, `
		SELECT amount_micros FROM assets WHERE user_id = $1 AND symbol = $2
	`, userID, strings.ToUpper(symbol)).Scan(&amount)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

func (s *Service) Balances(ctx context.Context, userID string) ([]AssetBalance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT symbol, amount_micros FROM assets WHERE user_id = $1 ORDER BY symbol
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AssetBalance
	for rows.Next() {
		var b AssetBalance
		if err := rows.Scan(&b.Symbol, &b.AmountMicros); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// History returns the account's transactions newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, kind, symbol, amount_micros, status, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Symbol, &t.AmountMicros, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Credit increases a balance and appends one transaction. It never fails for
// business reasons other than a non-positive amount.
func (s *Service) Credit(ctx context.Context, userID, symbol string, amountMicros int64, kind Kind, idemKey string) (Transaction, error) {
	var out Transaction
	if amountMicros <= 0 {
		return out, ErrInvalidAmount
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	err := s.RunSerializable(ctx, func(tx pgx.Tx) error {
		if idemKey != "" {
			if err := ClaimIdempotencyTx(ctx, tx, userID, idemKey, "credit_"+string(kind)); err != nil {
				return err
			}
		}
		if _, err := lockAsset(ctx, tx, userID, symbol); err != nil {
			return err
		}
		if err := adjustAsset(ctx, tx, userID, symbol, amountMicros); err != nil {
			return err
		}
		t, err := AppendTransactionTx(ctx, tx, userID, kind, symbol, amountMicros)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// Debit decreases a balance. Unless overdraft is allowed the current balance
// must cover the amount. Overdraft is an admin capability; requesting it from
// a non-admin actor fails closed.
func (s *Service) Debit(ctx context.Context, actor Actor, userID, symbol string, amountMicros int64, kind Kind, allowOverdraft bool, idemKey string) (Transaction, error) {
	var out Transaction
	if amountMicros <= 0 {
		return out, ErrInvalidAmount
	}
	if allowOverdraft && !actor.Admin {
		return out, ErrUnauthorized
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	err := s.RunSerializable(ctx, func(tx pgx.Tx) error {
		if idemKey != "" {
			if err := ClaimIdempotencyTx(ctx, tx, userID, idemKey, "debit_"+string(kind)); err != nil {
				return err
			}
		}
		balance, err := lockAsset(ctx, tx, userID, symbol)
		if err != nil {
			return err
		}
		if balance < amountMicros && !allowOverdraft {
			return ErrInsufficientFunds
		}
		if err := adjustAsset(ctx, tx, userID, symbol, -amountMicros); err != nil {
			return err
		}
		t, err := AppendTransactionTx(ctx, tx, userID, kind, symbol, amountMicros)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

type Leg struct {
	Symbol       string
	AmountMicros int64
	Kind         Kind
}

// TransferPair applies a debit leg and a credit leg atomically: either both
// balances move and both transactions append, or nothing is written. The
// sufficiency check on the debit leg runs under the same row lock.
func (s *Service) TransferPair(ctx context.Context, actor Actor, userID string, debit, credit Leg, allowOverdraft bool, idemKey string) ([]Transaction, error) {
	if debit.AmountMicros <= 0 || credit.AmountMicros <= 0 {
		return nil, ErrInvalidAmount
	}
	if allowOverdraft && !actor.Admin {
		return nil, ErrUnauthorized
	}
	debit.Symbol = strings.ToUpper(strings.TrimSpace(debit.Symbol))
	credit.Symbol = strings.ToUpper(strings.TrimSpace(credit.Symbol))

	var out []Transaction
	err := s.RunSerializable(ctx, func(tx pgx.Tx) error {
		out = out[:0]
		if idemKey != "" {
			if err := ClaimIdempotencyTx(ctx, tx, userID, idemKey, "transfer_pair"); err != nil {
				return err
			}
		}
		balance, err := lockAsset(ctx, tx, userID, debit.Symbol)
		if err != nil {
			return err
		}
		if balance < debit.AmountMicros && !allowOverdraft {
			return ErrInsufficientFunds
		}
		if _, err := lockAsset(ctx, tx, userID, credit.Symbol); err != nil {
			return err
		}
		if err := adjustAsset(ctx, tx, userID, debit.Symbol, -debit.AmountMicros); err != nil {
			return err
		}
		if err := adjustAsset(ctx, tx, userID, credit.Symbol, credit.AmountMicros); err != nil {
			return err
		}
		dt, err := AppendTransactionTx(ctx, tx, userID, debit.Kind, debit.Symbol, debit.AmountMicros)
		if err != nil {
			return err
		}
		ct, err := AppendTransactionTx(ctx, tx, userID, credit.Kind, credit.Symbol, credit.AmountMicros)
		if err != nil {
			return err
		}
		out = append(out, dt, ct)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunSerializable executes fn inside a serializable transaction, retrying on
// serialization failures with backoff. Combined with the per-account asset
// row locks this serializes all check-then-mutate sequences on one account.
func (s *Service) RunSerializable(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

// CreditTx is the in-transaction credit leg for services that manage their
// own transaction scope (the economy exchange path).
func CreditTx(ctx context.Context, tx pgx.Tx, userID, symbol string, amountMicros int64, kind Kind) (Transaction, error) {
	if amountMicros <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, err := lockAsset(ctx, tx, userID, symbol); err != nil {
		return Transaction{}, err
	}
	if err := adjustAsset(ctx, tx, userID, symbol, amountMicros); err != nil {
		return Transaction{}, err
	}
	return AppendTransactionTx(ctx, tx, userID, kind, symbol, amountMicros)
}

// AppendTransactionTx writes one immutable transaction row timestamped at
// commit time.
func AppendTransactionTx(ctx context.Context, tx pgx.Tx, userID string, kind Kind, symbol string, amountMicros int64) (Transaction, error) {
	t := Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         kind,
		Symbol:       symbol,
		AmountMicros: amountMicros,
		Status:       StatusCompleted,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, kind, symbol, amount_micros, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, t.ID, t.UserID, t.Kind, t.Symbol, t.AmountMicros, t.Status).Scan(&t.CreatedAt)
	return t, err
}

// ClaimIdempotencyTx reserves a per-user idempotency key inside the caller's
// transaction; a replayed key aborts the whole operation.
func ClaimIdempotencyTx(ctx context.Context, tx pgx.Tx, userID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, action)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

// lockAsset locks the (user, symbol) asset row and returns the balance,
// inserting a zero row first for symbols the account has not seen.
func lockAsset(ctx context.Context, tx pgx.Tx, userID, symbol string) (int64, error) {
	var amount int64
	err := tx.QueryRow(ctx, `
		SELECT amount_micros FROM assets
		WHERE user_id = $1 AND symbol = $2
		FOR UPDATE
	`, userID, symbol).Scan(&amount)
	if err == nil {
		return amount, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO assets (user_id, symbol, amount_micros)
		VALUES ($1, $2, 0)
	`, userID, symbol)
	return 0, err
}

func adjustAsset(ctx context.Context, tx pgx.Tx, userID, symbol string, deltaMicros int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE assets
		SET amount_micros = amount_micros + $1, updated_at = now()
		WHERE user_id = $2 AND symbol = $3
	`, deltaMicros, userID, symbol)
	return err
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func usernameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	parts := strings.Split(email, "@")
	if len(parts) == 0 || parts[0] == "" {
		return "trader"
	}
	out := make([]rune, 0, len(parts[0]))
	for _, r := range parts[0] {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "trader_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}
