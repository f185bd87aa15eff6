package ledger

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"dmcx/internal/db"
)

// Integration coverage for the transactional paths. Set TEST_DATABASE_URL to
// a scratch Postgres to run; skipped otherwise.
func testService(t *testing.T) *Service {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewService(pool, nil)
}

func newFundedAccount(t *testing.T, s *Service, quoteMicros int64) string {
	t.Helper()
	ctx := context.Background()
	userID := uuid.NewString()
	if err := s.EnsureAccount(ctx, userID, userID+"@test.local", "t_"+userID[:8]); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if quoteMicros > 0 {
		if _, err := s.Credit(ctx, userID, QuoteSymbol, quoteMicros, KindDeposit, ""); err != nil {
			t.Fatalf("seed credit: %v", err)
		}
	}
	return userID
}

func TestTransferPairInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	userID := newFundedAccount(t, s, 100*MicrosPerCoin)
	actor := Actor{UserID: userID}

	_, err := s.TransferPair(ctx, actor, userID,
		Leg{Symbol: QuoteSymbol, AmountMicros: 200 * MicrosPerCoin, Kind: KindBuy},
		Leg{Symbol: "BTC", AmountMicros: MicrosPerCoin, Kind: KindBuy},
		false, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	quote, err := s.Balance(ctx, userID, QuoteSymbol)
	if err != nil || quote != 100*MicrosPerCoin {
		t.Fatalf("quote balance = %d, %v; want unchanged 100 coins", quote, err)
	}
	btc, err := s.Balance(ctx, userID, "BTC")
	if err != nil || btc != 0 {
		t.Fatalf("btc balance = %d, %v; want 0", btc, err)
	}
	history, err := s.History(ctx, userID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Kind != KindDeposit {
		t.Fatalf("history = %+v; want only the seed deposit", history)
	}
}

func TestTransferPairMovesBothLegsAndAppendsBoth(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	userID := newFundedAccount(t, s, 1000*MicrosPerCoin)
	actor := Actor{UserID: userID}

	txns, err := s.TransferPair(ctx, actor, userID,
		Leg{Symbol: QuoteSymbol, AmountMicros: 505 * MicrosPerCoin, Kind: KindBuy},
		Leg{Symbol: "BTC", AmountMicros: 50 * MicrosPerCoin, Kind: KindBuy},
		false, "")
	if err != nil {
		t.Fatalf("transfer pair: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}

	quote, _ := s.Balance(ctx, userID, QuoteSymbol)
	if quote != 495*MicrosPerCoin {
		t.Fatalf("quote balance = %d, want 495 coins", quote)
	}
	btc, _ := s.Balance(ctx, userID, "BTC")
	if btc != 50*MicrosPerCoin {
		t.Fatalf("btc balance = %d, want 50 coins", btc)
	}
}

func TestTransferPairDuplicateIdempotencyKey(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	userID := newFundedAccount(t, s, 100*MicrosPerCoin)
	actor := Actor{UserID: userID}
	key := uuid.NewString()

	debit := Leg{Symbol: QuoteSymbol, AmountMicros: 10 * MicrosPerCoin, Kind: KindBuy}
	credit := Leg{Symbol: "BTC", AmountMicros: MicrosPerCoin, Kind: KindBuy}

	if _, err := s.TransferPair(ctx, actor, userID, debit, credit, false, key); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if _, err := s.TransferPair(ctx, actor, userID, debit, credit, false, key); !errors.Is(err, ErrDuplicateIdempotency) {
		t.Fatalf("replay: got %v, want ErrDuplicateIdempotency", err)
	}

	quote, _ := s.Balance(ctx, userID, QuoteSymbol)
	if quote != 90*MicrosPerCoin {
		t.Fatalf("quote balance = %d, want exactly one debit applied", quote)
	}
}

func TestDebitOverdraftRequiresAdmin(t *testing.T) {
	s := NewService(nil, nil)
	_, err := s.Debit(context.Background(), Actor{UserID: "u1"}, "u1", QuoteSymbol, MicrosPerCoin, KindWithdrawal, true, "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}
