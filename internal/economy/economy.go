// Package economy implements the tap game: energy, upgrades, the daily
// check-in streak, the Morse cipher puzzle, one-time tasks, the passive bot
// and the apricot-to-DMC exchange. Apricots live outside the ledger until
// exchanged; only the exchange ever touches asset balances.
package economy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmcx/internal/admin"
	"dmcx/internal/ledger"
)

var (
	ErrInsufficientApricots = errors.New("insufficient apricots")
	ErrInsufficientEnergy   = errors.New("insufficient energy")
	ErrAlreadyClaimed       = errors.New("already claimed today")
	ErrAlreadyCompleted     = errors.New("task already completed")
	ErrNothingToExchange    = errors.New("nothing to exchange")
	ErrUnknownUpgrade       = errors.New("unknown upgrade")
	ErrUnknownTask          = errors.New("unknown task")
)

type UpgradeKind string

const (
	UpgradeTap    UpgradeKind = "tap"
	UpgradeEnergy UpgradeKind = "energy"
	UpgradeBot    UpgradeKind = "bot"
)

// SettingsSource supplies the live exchange rate and cipher settings.
type SettingsSource interface {
	Settings() admin.Settings
}

// State is the player-visible snapshot of one economy row. Energy is
// reported post-regeneration.
type State struct {
	UserID           string `json:"user_id"`
	Apricots         int64  `json:"apricots"`
	LifetimeApricots int64  `json:"lifetime_apricots"`
	TapLevel         int64  `json:"tap_level"`
	Energy           int64  `json:"energy"`
	MaxEnergy        int64  `json:"max_energy"`
	BotLevel         int64  `json:"bot_level"`
	CheckInStreak    int    `json:"check_in_streak"`
	CipherProgress   int    `json:"cipher_progress"`

	NextTapUpgradeCost    int64 `json:"next_tap_upgrade_cost"`
	NextEnergyUpgradeCost int64 `json:"next_energy_upgrade_cost"`
	NextBotUpgradeCost    int64 `json:"next_bot_upgrade_cost"`
}

type TapResult struct {
	State    State `json:"state"`
	Taps     int64 `json:"taps"`
	Apricots int64 `json:"apricots_earned"`
}

type CheckInResult struct {
	State  State `json:"state"`
	Streak int   `json:"streak"`
	Reward int64 `json:"reward"`
}

type CipherResult struct {
	State     State  `json:"state"`
	Letter    string `json:"letter,omitempty"`
	Matched   bool   `json:"matched"`
	Completed bool   `json:"completed"`
	Reward    int64  `json:"reward,omitempty"`
}

type ExchangeResult struct {
	State          State              `json:"state"`
	ApricotsSpent  int64              `json:"apricots_spent"`
	DMCMicros      int64              `json:"dmc_micros"`
	Transaction    ledger.Transaction `json:"transaction"`
	ApricotsPerDMC int64              `json:"apricots_per_dmc"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Apricots int64  `json:"apricots"`
}

type Service struct {
	db       *pgxpool.Pool
	ledger   *ledger.Service
	settings SettingsSource
	log      *slog.Logger
}

func NewService(db *pgxpool.Pool, ledgerSvc *ledger.Service, settings SettingsSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, ledger: ledgerSvc, settings: settings, log: logger}
}

// economyRow mirrors the economy table for in-transaction mutation.
type economyRow struct {
	UserID           string
	Apricots         int64
	LifetimeApricots int64
	TapLevel         int64
	Energy           int64
	MaxEnergy        int64
	EnergyUpdatedAt  time.Time
	BotLevel         int64
	CipherProgress   int
	LastCipherClaim  *time.Time
	LastCheckIn      *time.Time
	CheckInStreak    int
}

func (r economyRow) state() State {
	return State{
		UserID:                r.UserID,
		Apricots:              r.Apricots,
		LifetimeApricots:      r.LifetimeApricots,
		TapLevel:              r.TapLevel,
		Energy:                r.Energy,
		MaxEnergy:             r.MaxEnergy,
		BotLevel:              r.BotLevel,
		CheckInStreak:         r.CheckInStreak,
		CipherProgress:        r.CipherProgress,
		NextTapUpgradeCost:    TapUpgradeCost(r.TapLevel),
		NextEnergyUpgradeCost: EnergyUpgradeCost(r.MaxEnergy),
		NextBotUpgradeCost:    BotUpgradeCost(r.BotLevel),
	}
}

// State reads the row without writing, applying regeneration for display.
func (s *Service) State(ctx context.Context, userID string) (State, error) {
	var r economyRow
	err := s.db.QueryRow(ctx, `
		SELECT user_id, apricots, lifetime_apricots, tap_level, energy, max_energy,
		       energy_updated_at, bot_level, cipher_progress,
		       last_cipher_claim_on, last_check_in_on, check_in_streak
		FROM economy WHERE user_id = $1
	`, userID).Scan(
		&r.UserID, &r.Apricots, &r.LifetimeApricots, &r.TapLevel, &r.Energy, &r.MaxEnergy,
		&r.EnergyUpdatedAt, &r.BotLevel, &r.CipherProgress,
		&r.LastCipherClaim, &r.LastCheckIn, &r.CheckInStreak,
	)
	if err == pgx.ErrNoRows {
		return State{}, ledger.ErrNotFound
	}
	if err != nil {
		return State{}, err
	}
	r.Energy, _ = RegenerateEnergy(r.Energy, r.MaxEnergy, r.EnergyUpdatedAt, time.Now())
	return r.state(), nil
}

// Tap spends energy on up to count taps and credits tapLevel apricots per
// tap. When energy covers only part of the batch the covered taps still
// land; a batch that can afford none fails.
func (s *Service) Tap(ctx context.Context, userID string, count int64, idemKey string) (TapResult, error) {
	if count <= 0 {
		return TapResult{}, ledger.ErrInvalidAmount
	}
	var out TapResult
	err := s.ledger.RunSerializable(ctx, func(tx pgx.Tx) error {
		if idemKey != "" {
			if err := ledger.ClaimIdempotencyTx(ctx, tx, userID, idemKey, "tap"); err != nil {
				return err
			}
		}
		r, err := lockEconomy(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := time.Now()
		r.Energy, r.EnergyUpdatedAt = RegenerateEnergy(r.Energy, r.MaxEnergy, r.EnergyUpdatedAt, now)

		taps := count
		if taps > r.Energy {
			taps = r.Energy
		}
		if taps <= 0 {
			return ErrInsufficientEnergy
		}
		earned := taps * r.TapLevel
		r.Energy -= taps
		r.Apricots += earned
		r.LifetimeApricots += earned

		if err := saveEconomy(ctx, tx, r); err != nil {
			return err
		}
		out = TapResult{State: r.state(), Taps: taps, Apricots: earned}
		return nil
	})
	return out, err
}

// Upgrade buys the next level of one upgrade track with apricots.
func (s *Service) Upgrade(ctx context.Context, userID string, kind UpgradeKind) (State, error) {
	kind = UpgradeKind(strings.ToLower(strings.TrimSpace(string(kind))))
	if kind != UpgradeTap && kind != UpgradeEnergy && kind != UpgradeBot {
		return State{}, ErrUnknownUpgrade
	}
	var out State
	err := s.ledger.RunSerializable(ctx, func(tx pgx.Tx) error {
		r, err := lockEconomy(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := time.Now()
		r.Energy, r.EnergyUpdatedAt = RegenerateEnergy(r.Energy, r.MaxEnergy, r.EnergyUpdatedAt, now)

		var cost int64
		switch kind {
		case UpgradeTap:
			cost = TapUpgradeCost(r.TapLevel)
		case UpgradeEnergy:
			cost = EnergyUpgradeCost(r.MaxEnergy)
		case UpgradeBot:
			cost = BotUpgradeCost(r.BotLevel)
		}
		if r.Apricots < cost {
			return ErrInsufficientApricots
		}
		r.Apricots -= cost
		switch kind {
		case UpgradeTap:
			r.TapLevel++
		case UpgradeEnergy:
			r.MaxEnergy += EnergyPerUpgrade
		case UpgradeBot:
			r.BotLevel++
		}

		if err := saveEconomy(ctx, tx, r); err != nil {
			return err
		}
		out = r.state()
		return nil
	})
	if err == nil {
		s.log.Info("upgrade purchased", "user_id", userID, "kind", kind)
	}
	return out, err
}

// CheckIn claims the daily reward. Consecutive days extend the streak up to
// the cap; the reward scales with the streak. One claim per UTC day.
func (s *Service) CheckIn(ctx context.Context, userID string) (CheckInResult, error) {
	var out CheckInResult
	err := s.ledger.RunSerializable(ctx, func(tx pgx.Tx) error {
		r, err := lockEconomy(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := time.Now()
		if r.LastCheckIn != nil && sameDay(*r.LastCheckIn, now) {
			return ErrAlreadyClaimed
		}
		streak := NextStreak(r.CheckInStreak, r.LastCheckIn, now)
		reward := int64(streak) * CheckInUnitReward

		today := DayUTC(now)
		r.LastCheckIn = &today
		r.CheckInStreak = streak
		r.Apricots += reward
		r.LifetimeApricots += reward
		r.Energy, r.EnergyUpdatedAt = RegenerateEnergy(r.Energy, r.MaxEnergy, r.EnergyUpdatedAt, now)

		if err := saveEconomy(ctx, tx, r); err != nil {
			return err
		}
		out = CheckInResult{State: r.state(), Streak: streak, Reward: reward}
		return nil
	})
	return out, err
}

// SubmitCipher feeds one dot/dash sequence into the daily puzzle. Wrong
// letters reset progress; finishing the word pays the reward once per UTC
// day.
func (s *Service) SubmitCipher(ctx context.Context, userID, symbols string) (CipherResult, error) {
	settings := s.settings.Settings()
	word := strings.ToUpper(strings.TrimSpace(settings.SecretCipherWord))
	if word == "" {
		return CipherResult{}, ledger.ErrNotFound
	}
	var out CipherResult
	err := s.ledger.RunSerializable(ctx, func(tx pgx.Tx) error {
		r, err := lockEconomy(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := time.Now()
		if r.LastCipherClaim != nil && sameDay(*r.LastCipherClaim, now) {
			return ErrAlreadyClaimed
		}
		r.Energy, r.EnergyUpdatedAt = RegenerateEnergy(r.Energy, r.MaxEnergy, r.EnergyUpdatedAt, now)

		next, matched := advanceCipher(word, r.CipherProgress, symbols)
		r.CipherProgress = next
		res := CipherResult{Matched: matched}
		if matched {
			res.Letter = string(word[next-1])
		}
		if matched && next == len(word) {
			today := DayUTC(now)
			r.LastCipherClaim = &today
			r.CipherProgress = 0
			r.Apricots += settings.CipherReward
			r.LifetimeApricots += settings.CipherReward
			res.Completed = true
			res.Reward = settings.CipherReward
		}

		if err := saveEconomy(ctx, tx, r); err != nil {
			return err
		}
		res.State = r.state()
		out = res
		return nil
	})
	return out, err
}

// CompleteTask pays a one-time task reward, resolved from the server-side
// catalog. The completed_tasks primary key makes replays fail regardless of
// interleaving.
func (s *Service) CompleteTask(ctx context.Context, userID, taskID string) (State, error) {
	taskID = strings.TrimSpace(taskID)
	reward, ok := TaskReward(taskID)
	if !ok {
		return State{}, ErrUnknownTask
	}
	var out State
	err := s.ledger.RunSerializable(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			INSERT INTO completed_tasks (user_id, task_id, reward)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, task_id) DO NOTHING
		`, userID, taskID, reward)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrAlreadyCompleted
		}
		r, err := lockEconomy(ctx, tx, userID)
		if err != nil {
			return err
		}
		r.Apricots += reward
		r.LifetimeApricots += reward
		if err := saveEconomy(ctx, tx, r); err != nil {
			return err
		}
		out = r.state()
		return nil
	})
	return out, err
}

// Exchange converts the entire apricot balance into DMC at the configured
// rate. The zeroing of apricots and the ledger credit commit together.
func (s *Service) Exchange(ctx context.Context, userID, idemKey string) (ExchangeResult, error) {
	settings := s.settings.Settings()
	var out ExchangeResult
	err := s.ledger.RunSerializable(ctx, func(tx pgx.Tx) error {
		if idemKey != "" {
			if err := ledger.ClaimIdempotencyTx(ctx, tx, userID, idemKey, "exchange"); err != nil {
				return err
			}
		}
		r, err := lockEconomy(ctx, tx, userID)
		if err != nil {
			return err
		}
		if r.Apricots <= 0 {
			return ErrNothingToExchange
		}
		dmcMicros, err := ledger.ConvertMicros(r.Apricots, ledger.MicrosPerCoin, settings.ApricotsPerDMC)
		if err != nil {
			return err
		}
		if dmcMicros <= 0 {
			return ErrNothingToExchange
		}
		spent := r.Apricots
		r.Apricots = 0
		if err := saveEconomy(ctx, tx, r); err != nil {
			return err
		}
		t, err := ledger.CreditTx(ctx, tx, userID, ledger.SyntheticSymbol, dmcMicros, ledger.KindExchange)
		if err != nil {
			return err
		}
		out = ExchangeResult{
			State:          r.state(),
			ApricotsSpent:  spent,
			DMCMicros:      dmcMicros,
			Transaction:    t,
			ApricotsPerDMC: settings.ApricotsPerDMC,
		}
		return nil
	})
	if err == nil {
		s.log.Info("apricots exchanged", "user_id", userID, "apricots", out.ApricotsSpent, "dmc_micros", out.DMCMicros)
	}
	return out, err
}

// Leaderboard ranks players by spendable apricots, oldest account first on
// ties.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	rows, err := s.db.Query(ctx, `
		SELECT a.username, e.apricots
		FROM economy e
		JOIN accounts a ON a.user_id = e.user_id
		ORDER BY e.apricots DESC, a.created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Apricots); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunBotTick credits passive bot income to every account with a bot. Meant
// to be called from the worker on a fixed interval; a single statement keeps
// it atomic without per-row locking.
func (s *Service) RunBotTick(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE economy
		SET apricots = apricots + bot_level * $1,
		    lifetime_apricots = lifetime_apricots + bot_level * $1,
		    updated_at = now()
		WHERE bot_level > 0
	`, BotYieldPerLevel)
	if err != nil {
		return 0, err
	}
	n := cmd.RowsAffected()
	if n > 0 {
		s.log.Info("bot accrual tick", "accounts", n)
	}
	return n, nil
}

func lockEconomy(ctx context.Context, tx pgx.Tx, userID string) (economyRow, error) {
	var r economyRow
	err := tx.QueryRow(ctx, `
		SELECT user_id, apricots, lifetime_apricots, tap_level, energy, max_energy,
		       energy_updated_at, bot_level, cipher_progress,
		       last_cipher_claim_on, last_check_in_on, check_in_streak
		FROM economy WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(
		&r.UserID, &r.Apricots, &r.LifetimeApricots, &r.TapLevel, &r.Energy, &r.MaxEnergy,
		&r.EnergyUpdatedAt, &r.BotLevel, &r.CipherProgress,
		&r.LastCipherClaim, &r.LastCheckIn, &r.CheckInStreak,
	)
	if err == pgx.ErrNoRows {
		return r, ledger.ErrNotFound
	}
	return r, err
}

func saveEconomy(ctx context.Context, tx pgx.Tx, r economyRow) error {
	_, err := tx.Exec(ctx, `
		UPDATE economy
		SET apricots = $1, lifetime_apricots = $2, tap_level = $3,
		    energy = $4, max_energy = $5, energy_updated_at = $6,
		    bot_level = $7, cipher_progress = $8,
		    last_cipher_claim_on = $9, last_check_in_on = $10,
		    check_in_streak = $11, updated_at = now()
		WHERE user_id = $12
	`, r.Apricots, r.LifetimeApricots, r.TapLevel,
		r.Energy, r.MaxEnergy, r.EnergyUpdatedAt,
		r.BotLevel, r.CipherProgress,
		r.LastCipherClaim, r.LastCheckIn,
		r.CheckInStreak, r.UserID)
	return err
}
