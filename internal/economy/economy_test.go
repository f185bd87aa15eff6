package economy

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"dmcx/internal/admin"
	"dmcx/internal/db"
	"dmcx/internal/ledger"
)

type fixedSettings struct{}

func (fixedSettings) Settings() admin.Settings {
	return admin.Settings{
		ApricotsPerDMC:   10_000,
		SecretCipherWord: "APRICOT",
		CipherReward:     50_000,
	}
}

// Integration coverage for the transactional economy paths. Set
// TEST_DATABASE_URL to a scratch Postgres to run; skipped otherwise.
func testServices(t *testing.T) (*Service, *ledger.Service, string) {
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
	ledgerSvc := ledger.NewService(pool, nil)
	userID := uuid.NewString()
	if err := ledgerSvc.EnsureAccount(ctx, userID, userID+"@test.local", "t_"+userID[:8]); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	return NewService(pool, ledgerSvc, fixedSettings{}, nil), ledgerSvc, userID
}

func TestCompleteTaskIdempotent(t *testing.T) {
	s, _, userID := testServices(t)
	ctx := context.Background()

	state, err := s.CompleteTask(ctx, userID, "first_trade")
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	reward, _ := TaskReward("first_trade")
	if state.Apricots != reward {
		t.Fatalf("apricots = %d, want %d", state.Apricots, reward)
	}

	if _, err := s.CompleteTask(ctx, userID, "first_trade"); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("replay: got %v, want ErrAlreadyCompleted", err)
	}
	after, err := s.State(ctx, userID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if after.Apricots != reward {
		t.Fatalf("apricots after replay = %d, want still %d", after.Apricots, reward)
	}
}

func TestExchangeRoundTrip(t *testing.T) {
	s, ledgerSvc, userID := testServices(t)
	ctx := context.Background()

	if _, err := s.CompleteTask(ctx, userID, "first_trade"); err != nil {
		t.Fatalf("seed apricots: %v", err)
	}

	out, err := s.Exchange(ctx, userID, "")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	// 15_000 apricots at 10_000 per DMC is 1.5 DMC.
	if out.DMCMicros != 1_500_000 {
		t.Fatalf("dmc micros = %d, want 1_500_000", out.DMCMicros)
	}
	if out.State.Apricots != 0 {
		t.Fatalf("apricots = %d, want 0 after exchange", out.State.Apricots)
	}
	balance, err := ledgerSvc.Balance(ctx, userID, ledger.SyntheticSymbol)
	if err != nil || balance != 1_500_000 {
		t.Fatalf("dmc balance = %d, %v; want 1_500_000", balance, err)
	}

	if _, err := s.Exchange(ctx, userID, ""); !errors.Is(err, ErrNothingToExchange) {
		t.Fatalf("second exchange: got %v, want ErrNothingToExchange", err)
	}
	balance, _ = ledgerSvc.Balance(ctx, userID, ledger.SyntheticSymbol)
	if balance != 1_500_000 {
		t.Fatalf("dmc balance after failed exchange = %d, want unchanged", balance)
	}
}
