// Package treasury handles the credit-only deposit path and the debit-only
// withdrawal path. Withdrawals go to an external address; there is no local
// counterpart credit.
package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dmcx/internal/ledger"
)

type Service struct {
	ledger *ledger.Service
	log    *slog.Logger
}

func NewService(ledgerSvc *ledger.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledgerSvc, log: logger}
}

// Deposit credits the actor's own balance. It only fails on invalid input
// or infrastructure faults.
func (s *Service) Deposit(ctx context.Context, actor ledger.Actor, symbol string, amountMicros int64, idemKey string) (ledger.Transaction, error) {
	t, err := s.ledger.Credit(ctx, actor.UserID, symbol, amountMicros, ledger.KindDeposit, idemKey)
	if err != nil {
		return t, err
	}
	s.log.Info("deposit", "user_id", actor.UserID, "symbol", t.Symbol, "amount_micros", t.AmountMicros)
	return t, nil
}

// Withdraw debits the actor's own balance toward an external destination.
// Sufficiency is enforced unless the admin actor asks for overdraft.
func (s *Service) Withdraw(ctx context.Context, actor ledger.Actor, symbol string, amountMicros int64, destination string, allowOverdraft bool, idemKey string) (ledger.Transaction, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return ledger.Transaction{}, fmt.Errorf("destination address is required")
	}
	t, err := s.ledger.Debit(ctx, actor, actor.UserID, symbol, amountMicros, ledger.KindWithdrawal, allowOverdraft, idemKey)
	if err != nil {
		return t, err
	}
	s.log.Info("withdrawal", "user_id", actor.UserID, "symbol", t.Symbol, "amount_micros", t.AmountMicros, "destination", destination)
	return t, nil
}

// Airdrop is the admin-only credit of any account's balance.
func (s *Service) Airdrop(ctx context.Context, actor ledger.Actor, targetUserID, symbol string, amountMicros int64, idemKey string) (ledger.Transaction, error) {
	if !actor.Admin {
		return ledger.Transaction{}, ledger.ErrUnauthorized
	}
	t, err := s.ledger.Credit(ctx, targetUserID, symbol, amountMicros, ledger.KindAirdrop, idemKey)
	if err != nil {
		return t, err
	}
	s.log.Info("airdrop", "target", targetUserID, "symbol", t.Symbol, "amount_micros", t.AmountMicros, "by", actor.UserID)
	return t, nil
}
