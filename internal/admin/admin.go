// Package admin is the cross-cutting authority: KYC status, the
// SystemSettings singleton, and synthetic-token price control. Admin
// authority is carried as an explicit ledger.Actor checked per operation.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
)

var ErrInvalidKycStatus = errors.New("invalid kyc status")

type KycStatus string

const (
	KycUnverified KycStatus = "unverified"
	KycPending    KycStatus = "pending"
	KycVerified   KycStatus = "verified"
)

// Settings is the process-wide singleton read by the trading and economy
// engines. Updates take effect for subsequent operations only; past
// transactions and fees are never recomputed.
type Settings struct {
	ApricotsPerDMC     int64     `json:"apricots_per_dmc"`
	AIEnabled          bool      `json:"ai_enabled"`
	PlatformFeePercent float64   `json:"platform_fee_percent"`
	SecretCipherWord   string    `json:"secret_cipher_word"`
	CipherReward       int64     `json:"cipher_reward"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SettingsPatch carries partial updates; nil fields are left unchanged.
type SettingsPatch struct {
	ApricotsPerDMC     *int64   `json:"apricots_per_dmc"`
	AIEnabled          *bool    `json:"ai_enabled"`
	PlatformFeePercent *float64 `json:"platform_fee_percent"`
	SecretCipherWord   *string  `json:"secret_cipher_word"`
	CipherReward       *int64   `json:"cipher_reward"`
}

func defaultSettings() Settings {
	return Settings{
		ApricotsPerDMC:     10_000,
		AIEnabled:          true,
		PlatformFeePercent: 1.0,
		SecretCipherWord:   "APRICOT",
		CipherReward:       50_000,
	}
}

type Service struct {
	db     *pgxpool.Pool
	log    *slog.Logger
	oracle *oracle.Oracle
	admins map[string]bool

	mu       sync.RWMutex
	settings Settings
}

func NewService(db *pgxpool.Pool, o *oracle.Oracle, adminUserIDs []string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[string]bool, len(adminUserIDs))
	for _, id := range adminUserIDs {
		admins[id] = true
	}
	return &Service{
		db:       db,
		log:      logger,
		oracle:   o,
		admins:   admins,
		settings: defaultSettings(),
	}
}

// ActorFor mints the authority token for a user id. Only allowlisted users
// get the admin capability.
func (s *Service) ActorFor(userID string) ledger.Actor {
	return ledger.Actor{UserID: userID, Admin: s.admins[userID]}
}

// LoadSettings reads the singleton row into the cache, inserting defaults on
// first boot.
func (s *Service) LoadSettings(ctx context.Context) error {
	var got Settings
	err := s.db.QueryRow(ctx, `
		SELECT apricots_per_dmc, ai_enabled, platform_fee_percent,
		       secret_cipher_word, cipher_reward, updated_at
		FROM settings WHERE id = 1
	`).Scan(&got.ApricotsPerDMC, &got.AIEnabled, &got.PlatformFeePercent,
		&got.SecretCipherWord, &got.CipherReward, &got.UpdatedAt)
	if err == pgx.ErrNoRows {
		def := defaultSettings()
		_, err = s.db.Exec(ctx, `
			INSERT INTO settings (id, apricots_per_dmc, ai_enabled, platform_fee_percent, secret_cipher_word, cipher_reward)
			VALUES (1, $1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, def.ApricotsPerDMC, def.AIEnabled, def.PlatformFeePercent, def.SecretCipherWord, def.CipherReward)
		if err != nil {
			return err
		}
		got = def
		got.UpdatedAt = time.Now().UTC()
	} else if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = got
	s.mu.Unlock()
	return nil
}

// Settings returns the cached singleton.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings merges a partial patch into the singleton and persists it.
func (s *Service) UpdateSettings(ctx context.Context, actor ledger.Actor, patch SettingsPatch) (Settings, error) {
	if !actor.Admin {
		return Settings{}, ledger.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.settings
	next = applyPatch(next, patch)
	next.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		UPDATE settings
		SET apricots_per_dmc = $1, ai_enabled = $2, platform_fee_percent = $3,
		    secret_cipher_word = $4, cipher_reward = $5, updated_at = now()
		WHERE id = 1
	`, next.ApricotsPerDMC, next.AIEnabled, next.PlatformFeePercent,
		next.SecretCipherWord, next.CipherReward)
	if err != nil {
		return Settings{}, err
	}
	s.settings = next
	s.log.Info("settings updated", "by", actor.UserID)
	return next, nil
}

func applyPatch(base Settings, patch SettingsPatch) Settings {
	if patch.ApricotsPerDMC != nil && *patch.ApricotsPerDMC > 0 {
		base.ApricotsPerDMC = *patch.ApricotsPerDMC
	}
	if patch.AIEnabled != nil {
		base.AIEnabled = *patch.AIEnabled
	}
	if patch.PlatformFeePercent != nil && *patch.PlatformFeePercent >= 0 {
		base.PlatformFeePercent = *patch.PlatformFeePercent
	}
	if patch.SecretCipherWord != nil && strings.TrimSpace(*patch.SecretCipherWord) != "" {
		base.SecretCipherWord = strings.ToUpper(strings.TrimSpace(*patch.SecretCipherWord))
	}
	if patch.CipherReward != nil && *patch.CipherReward > 0 {
		base.CipherReward = *patch.CipherReward
	}
	return base
}

// VerifyKyc sets an account's KYC status. Any transition between the three
// states is allowed, including revocation back to unverified.
func (s *Service) VerifyKyc(ctx context.Context, actor ledger.Actor, userID string, status KycStatus) error {
	if !actor.Admin {
		return ledger.ErrUnauthorized
	}
	switch status {
	case KycUnverified, KycPending, KycVerified:
	default:
		return ErrInvalidKycStatus
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE accounts SET kyc_status = $1 WHERE user_id = $2
	`, string(status), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	s.log.Info("kyc status set", "user_id", userID, "status", status, "by", actor.UserID)
	return nil
}

// RequestKyc lets an account move itself into the pending state.
func (s *Service) RequestKyc(ctx context.Context, userID string) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE accounts SET kyc_status = $1
		WHERE user_id = $2 AND kyc_status <> $3
	`, string(KycPending), userID, string(KycVerified))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

type PriceAction string

const (
	PricePump  PriceAction = "pump"
	PriceDump  PriceAction = "dump"
	PriceReset PriceAction = "reset"
)

// ForcePrice pumps, dumps, or resets the synthetic token's multiplier.
// Pump and dump compose multiplicatively across calls.
func (s *Service) ForcePrice(actor ledger.Actor, action PriceAction) (float64, error) {
	if !actor.Admin {
		return 0, ledger.ErrUnauthorized
	}
	var multiplier float64
	switch action {
	case PricePump:
		multiplier = s.oracle.ApplyFactor(oracle.PumpFactor)
	case PriceDump:
		multiplier = s.oracle.ApplyFactor(oracle.DumpFactor)
	case PriceReset:
		multiplier = s.oracle.ResetMultiplier()
	default:
		return 0, errors.New("action must be pump, dump or reset")
	}
	s.log.Info("synthetic price forced", "action", action, "multiplier", multiplier, "by", actor.UserID)
	return multiplier, nil
}

type AccountInfo struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	KycStatus KycStatus `json:"kyc_status"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Service) Account(ctx context.Context, userID string) (AccountInfo, error) {
	var out AccountInfo
	err := s.db.QueryRow(ctx, `
		SELECT user_id, email, username, kyc_status, created_at
		FROM accounts WHERE user_id = $1
	`, userID).Scan(&out.UserID, &out.Email, &out.Username, &out.KycStatus, &out.CreatedAt)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrNotFound
	}
	return out, err
}
