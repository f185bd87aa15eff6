package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "dmcx/internal/cli"
	"dmcx/internal/config"
	"dmcx/internal/ledger"
	"dmcx/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "dmc",
		Short:        "DMCX exchange and tap game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newDashCmd(&apiBase),
		newPricesCmd(&apiBase),
		newTradeCmd(&apiBase),
		newDepositCmd(&apiBase),
		newWithdrawCmd(&apiBase),
		newHistoryCmd(&apiBase),
		newTapCmd(&apiBase),
		newUpgradeCmd(&apiBase),
		newDailyCmd(&apiBase),
		newCipherCmd(&apiBase),
		newTaskCmd(&apiBase),
		newExchangeCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newKycCmd(&apiBase),
		newAskCmd(&apiBase),
		newSyncCmd(&apiBase),
		newAdminCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a DMCX account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Signup(ctx, email, password, username)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `dmc login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to DMCX",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newDashCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show balances, game state and prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Dashboard(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return renderDashboard(out)
		},
	}
}

func newPricesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prices [symbol]",
		Short: "Show live prices, or one symbol's history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if len(args) == 0 {
				out, err := client.Prices(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				return renderPrices(out)
			}
			symbol := strings.ToUpper(strings.TrimSpace(args[0]))
			out, err := client.PriceHistory(ctx, sess.AccessToken, symbol, "1h", 24)
			if err != nil {
				return err
			}
			return renderPriceHistory(out)
		},
	}
}

func newTradeCmd(apiBase *string) *cobra.Command {
	trade := &cobra.Command{
		Use:   "trade",
		Short: "Buy and sell against the USDT book",
	}
	trade.AddCommand(newTradeSideCmd(apiBase, "buy", "Buy an asset with USDT"))
	trade.AddCommand(newTradeSideCmd(apiBase, "sell", "Sell an asset for USDT"))
	return trade
}

func newTradeSideCmd(apiBase *string, side, short string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " [symbol]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			qty, err := promptFloat("Quantity", 0)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Trade(ctx, sess.AccessToken, side, symbol, uuid.NewString(), ledger.CoinsToMicros(qty))
			if err != nil {
				return err
			}
			return renderTradeResult(out)
		},
	}
}

func newDepositCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit [symbol]",
		Short: "Credit play funds to your account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			amount, err := promptFloat("Amount", 0)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Deposit(ctx, sess.AccessToken, symbol, uuid.NewString(), ledger.CoinsToMicros(amount))
			if err != nil {
				return err
			}
			return renderTransaction(out, "Deposit complete.")
		},
	}
}

func newWithdrawCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw [symbol]",
		Short: "Withdraw to an external address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			amount, err := promptFloat("Amount", 0)
			if err != nil {
				return err
			}
			destination, err := promptRequired("Destination address")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Withdraw(ctx, sess.AccessToken, symbol, destination, uuid.NewString(), ledger.CoinsToMicros(amount))
			if err != nil {
				return err
			}
			return renderTransaction(out, "Withdrawal sent.")
		},
	}
}

func newHistoryCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Transactions(ctx, sess.AccessToken, 25)
			if err != nil {
				return err
			}
			return renderTransactions(out)
		},
	}
}

func newTapCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tap [count]",
		Short: "Tap for apricots (queued locally when offline)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			count := int64(1)
			if len(args) > 0 {
				count, err = strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
				if err != nil || count <= 0 {
					return fmt.Errorf("invalid tap count")
				}
			}
			q := syncq.NewTap(count)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Tap(ctx, sess.AccessToken, q.Key, count)
			if err != nil {
				if isAPIStructuredError(err) {
					return err
				}
				if qErr := syncq.Push(q); qErr != nil {
					return qErr
				}
				printWarn(fmt.Sprintf("Offline. Queued %d tap(s); run `dmc sync` when back online.", count))
				return nil
			}
			return renderTapResult(out)
		},
	}
}

func newUpgradeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade [tap|energy|bot]",
		Short: "Buy an upgrade with apricots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			var kind string
			if len(args) > 0 {
				kind = strings.ToLower(strings.TrimSpace(args[0]))
			} else {
				kind, err = promptChoice("Upgrade", []string{"tap", "energy", "bot"}, "tap")
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Upgrade(ctx, sess.AccessToken, kind)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Upgrade %q purchased.", kind))
			return renderEconomyState(out)
		},
	}
}

func newDailyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Claim the daily check-in reward",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.CheckIn(ctx, sess.AccessToken)
			if err != nil {
				if isAPIStructuredError(err) {
					return err
				}
				if qErr := syncq.Push(syncq.NewCheckIn()); qErr != nil {
					return qErr
				}
				printWarn("Offline. Check-in queued; run `dmc sync` when back online.")
				return nil
			}
			return renderCheckIn(out)
		},
	}
}

func newCipherCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cipher [sequence]",
		Short: "Submit one Morse letter toward the daily word",
		Long:  "Submit a dot/dash sequence for the next letter of the secret word, e.g. `dmc cipher .-`.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			var seq string
			if len(args) > 0 {
				seq = strings.TrimSpace(args[0])
			} else {
				seq, err = promptRequired("Sequence (dots and dashes)")
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.SubmitCipher(ctx, sess.AccessToken, seq)
			if err != nil {
				return err
			}
			return renderCipher(out)
		},
	}
}

func newTaskCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "task [task_id]",
		Short: "Complete a one-time task for a reward",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			var taskID string
			if len(args) > 0 {
				taskID = strings.TrimSpace(args[0])
			} else {
				catalog, err := client.Tasks(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				if err := renderTasks(catalog); err != nil {
					return err
				}
				taskID, err = promptRequired("Task ID")
				if err != nil {
					return err
				}
			}
			out, err := client.CompleteTask(ctx, sess.AccessToken, taskID)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Task %s complete.", taskID))
			return renderEconomyState(out)
		},
	}
}

func newExchangeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "exchange",
		Short: "Convert all apricots into DMC",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Exchange(ctx, sess.AccessToken, uuid.NewString())
			if err != nil {
				return err
			}
			return renderExchange(out)
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Top players by apricots",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Leaderboard(ctx, sess.AccessToken, 25)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
}

func newKycCmd(apiBase *string) *cobra.Command {
	kyc := &cobra.Command{
		Use:   "kyc",
		Short: "KYC status commands",
	}
	kyc.AddCommand(&cobra.Command{
		Use:   "request",
		Short: "Request KYC verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if _, err := client.RequestKyc(ctx, sess.AccessToken); err != nil {
				return err
			}
			printSuccess("KYC verification requested.")
			return nil
		},
	})
	return kyc
}

func newAskCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask the in-game assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				question, err = promptRequired("Question")
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.AskAssistant(ctx, sess.AccessToken, question)
			if err != nil {
				return err
			}
			if reply, ok := out["reply"].(string); ok {
				printInfo(reply)
			}
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay taps queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			out, err := client.SyncReplay(ctx, sess.AccessToken, queue)
			if err != nil {
				return err
			}
			if err := syncq.Clear(); err != nil {
				return err
			}
			return renderSyncResults(out, len(queue))
		},
	}
}

func newAdminCmd(apiBase *string) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin-only platform controls",
	}

	adminCmd.AddCommand(&cobra.Command{
		Use:   "settings",
		Short: "Show platform settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := adminDo(cmd, apiBase, "GET", "/v1/admin/settings", nil)
			if err != nil {
				return err
			}
			return renderSettings(out)
		},
	})

	adminCmd.AddCommand(&cobra.Command{
		Use:   "set [key] [value]",
		Short: "Update one platform setting",
		Long:  "Keys: apricots_per_dmc, ai_enabled, platform_fee_percent, secret_cipher_word, cipher_reward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := settingsPatchBody(args[0], args[1])
			if err != nil {
				return err
			}
			out, err := adminDo(cmd, apiBase, "PATCH", "/v1/admin/settings", body)
			if err != nil {
				return err
			}
			printSuccess("Settings updated.")
			return renderSettings(out)
		},
	})

	adminCmd.AddCommand(&cobra.Command{
		Use:   "price [pump|dump|reset]",
		Short: "Force the DMC price multiplier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := strings.ToLower(strings.TrimSpace(args[0]))
			out, err := adminDo(cmd, apiBase, "POST", "/v1/admin/price/"+action, map[string]any{})
			if err != nil {
				return err
			}
			if m, ok := out["multiplier"].(float64); ok {
				printSuccess(fmt.Sprintf("DMC multiplier is now %.4f", m))
			}
			return nil
		},
	})

	adminCmd.AddCommand(&cobra.Command{
		Use:   "kyc [user_id] [unverified|pending|verified]",
		Short: "Set a user's KYC status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/kyc/" + strings.TrimSpace(args[0])
			_, err := adminDo(cmd, apiBase, "POST", path, map[string]any{
				"status": strings.ToLower(strings.TrimSpace(args[1])),
			})
			if err != nil {
				return err
			}
			printSuccess("KYC status updated.")
			return nil
		},
	})

	adminCmd.AddCommand(&cobra.Command{
		Use:   "airdrop [user_id] [symbol] [amount]",
		Short: "Credit any account's balance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(strings.TrimSpace(args[2]), 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("invalid amount")
			}
			out, err := adminDo(cmd, apiBase, "POST", "/v1/admin/airdrops", map[string]any{
				"user_id":       strings.TrimSpace(args[0]),
				"symbol":        strings.ToUpper(strings.TrimSpace(args[1])),
				"amount_micros": ledger.CoinsToMicros(amount),
			})
			if err != nil {
				return err
			}
			return renderTransaction(out, "Airdrop delivered.")
		},
	})

	adminCmd.AddCommand(&cobra.Command{
		Use:   "trade [buy|sell] [symbol] [quantity]",
		Short: "Market-make with overdraft allowed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.ParseFloat(strings.TrimSpace(args[2]), 64)
			if err != nil || qty <= 0 {
				return fmt.Errorf("invalid quantity")
			}
			out, err := adminDo(cmd, apiBase, "POST", "/v1/admin/trades", map[string]any{
				"side":            strings.ToLower(strings.TrimSpace(args[0])),
				"symbol":          strings.ToUpper(strings.TrimSpace(args[1])),
				"quantity_micros": ledger.CoinsToMicros(qty),
			})
			if err != nil {
				return err
			}
			return renderTradeResult(out)
		},
	})

	return adminCmd
}

func adminDo(cmd *cobra.Command, apiBase *string, method, path string, body map[string]any) (map[string]any, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("login required: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	client := newClient(apiBase)
	idem := ""
	if method == "POST" {
		idem = uuid.NewString()
	}
	return client.Do(ctx, method, path, sess.AccessToken, body, idem)
}

func settingsPatchBody(key, value string) (map[string]any, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	switch key {
	case "apricots_per_dmc", "cipher_reward":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid value for %s", key)
		}
		return map[string]any{key: v}, nil
	case "platform_fee_percent":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid value for %s", key)
		}
		return map[string]any{key: v}, nil
	case "ai_enabled":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s", key)
		}
		return map[string]any{key: v}, nil
	case "secret_cipher_word":
		if value == "" {
			return nil, fmt.Errorf("cipher word cannot be empty")
		}
		return map[string]any{key: strings.ToUpper(value)}, nil
	default:
		return nil, fmt.Errorf("unknown setting %q", key)
	}
}

func isAPIStructuredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "api status")
}

func symbolFromArgsOrPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.ToUpper(strings.TrimSpace(args[0])), nil
	}
	return promptSymbol("Symbol")
}
