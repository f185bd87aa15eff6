package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dmcx/internal/admin"
	"dmcx/internal/economy"
	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
	"dmcx/internal/trading"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type dashboardPayload struct {
	Account  accountView           `json:"account"`
	Balances []ledger.AssetBalance `json:"balances"`
	Economy  economy.State         `json:"economy"`
	Prices   []oracle.Tick         `json:"prices"`
}

type accountView struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	KycStatus string `json:"kyc_status"`
}

type pricesPayload struct {
	Prices []oracle.Tick `json:"prices"`
}

type historyPayload struct {
	Symbol string              `json:"symbol"`
	Points []oracle.PricePoint `json:"points"`
}

type transactionsPayload struct {
	Transactions []ledger.Transaction `json:"transactions"`
}

type leaderboardPayload struct {
	Rows []economy.LeaderboardEntry `json:"rows"`
}

type tasksPayload struct {
	Tasks []economy.TaskInfo `json:"tasks"`
}

type syncResultsPayload struct {
	Results []struct {
		Op    string `json:"op"`
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	} `json:"results"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.4f", min))
			continue
		}
		return v, nil
	}
}

func promptSymbol(label string) (string, error) {
	for {
		symbol, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if len(symbol) >= 2 && len(symbol) <= 10 {
			return symbol, nil
		}
		printWarn("Symbol must be 2-10 characters.")
	}
}

func renderDashboard(raw map[string]any) error {
	d, err := decodeInto[dashboardPayload](raw)
	if err != nil {
		return err
	}

	accent.Printf("\n== DMCX DASHBOARD ==\n")
	fmt.Printf("User:     %s (%s)\n", d.Account.Username, d.Account.Email)
	fmt.Printf("KYC:      %s\n", d.Account.KycStatus)

	fmt.Println()
	accent.Println("Balances")
	if len(d.Balances) == 0 {
		printInfo("No balances yet.")
	} else {
		fmt.Printf("%-8s %16s\n", "SYMBOL", "AMOUNT")
		for _, b := range d.Balances {
			fmt.Printf("%-8s %16s\n", b.Symbol, formatMicros(b.AmountMicros))
		}
	}

	fmt.Println()
	accent.Println("Tap Game")
	e := d.Economy
	fmt.Printf("Apricots:   %s (lifetime %s)\n", comma(e.Apricots), comma(e.LifetimeApricots))
	fmt.Printf("Energy:     %d / %d\n", e.Energy, e.MaxEnergy)
	fmt.Printf("Tap level:  %d (next upgrade %s)\n", e.TapLevel, comma(e.NextTapUpgradeCost))
	fmt.Printf("Bot level:  %d (next upgrade %s)\n", e.BotLevel, comma(e.NextBotUpgradeCost))
	fmt.Printf("Streak:     %d day(s)\n", e.CheckInStreak)

	fmt.Println()
	accent.Println("Prices")
	for _, p := range d.Prices {
		fmt.Printf("%-8s %16s USDT\n", p.Symbol, formatMicros(p.PriceMicros))
	}
	fmt.Println()
	return nil
}

func renderPrices(raw map[string]any) error {
	out, err := decodeInto[pricesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== PRICES ==")
	if len(out.Prices) == 0 {
		printInfo("No prices available; feed may still be warming up.")
		return nil
	}
	fmt.Printf("%-8s %16s %-20s\n", "SYMBOL", "PRICE", "AS OF")
	for _, p := range out.Prices {
		fmt.Printf("%-8s %16s %-20s\n", p.Symbol, formatMicros(p.PriceMicros), p.AsOf.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	return nil
}

func renderPriceHistory(raw map[string]any) error {
	out, err := decodeInto[historyPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s HISTORY ==\n", out.Symbol)
	if len(out.Points) == 0 {
		printInfo("No history available.")
		return nil
	}
	first := out.Points[0].PriceMicros
	last := out.Points[len(out.Points)-1].PriceMicros
	fmt.Printf("Trend: %s USDT\n\n", colorizeMicros(last-first))
	fmt.Printf("%-20s %16s\n", "TIME", "PRICE")
	for _, p := range out.Points {
		fmt.Printf("%-20s %16s\n", p.At.Local().Format("2006-01-02 15:04"), formatMicros(p.PriceMicros))
	}
	fmt.Println()
	return nil
}

func renderTradeResult(raw map[string]any) error {
	out, err := decodeInto[trading.TradeResult](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== TRADE %s ==\n", strings.ToUpper(string(out.Side)))
	fmt.Printf("Symbol:   %s\n", out.Symbol)
	fmt.Printf("Price:    %s USDT\n", formatMicros(out.PriceMicros))
	fmt.Printf("Notional: %s USDT\n", formatMicros(out.NotionalMicros))
	fmt.Printf("Fee:      %s USDT\n", formatMicros(out.FeeMicros))
	if out.Message != "" {
		printSuccess(out.Message)
	}
	fmt.Println()
	return nil
}

func renderTransaction(raw map[string]any, message string) error {
	t, err := decodeInto[ledger.Transaction](raw)
	if err != nil {
		return err
	}
	printSuccess(message)
	fmt.Printf("%s %s %s (%s)\n", t.Kind, formatMicros(t.AmountMicros), t.Symbol, t.ID)
	return nil
}

func renderTransactions(raw map[string]any) error {
	out, err := decodeInto[transactionsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TRANSACTIONS ==")
	if len(out.Transactions) == 0 {
		printInfo("No transactions yet.")
		return nil
	}
	fmt.Printf("%-12s %-8s %16s %-10s %-20s\n", "KIND", "SYMBOL", "AMOUNT", "STATUS", "TIME")
	for _, t := range out.Transactions {
		fmt.Printf("%-12s %-8s %16s %-10s %-20s\n",
			t.Kind, t.Symbol, formatMicros(t.AmountMicros), t.Status,
			t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
	return nil
}

func renderEconomyState(raw map[string]any) error {
	e, err := decodeInto[economy.State](raw)
	if err != nil {
		return err
	}
	printState(e)
	return nil
}

func printState(e economy.State) {
	fmt.Printf("Apricots: %s | Energy: %d/%d | Tap lvl %d | Bot lvl %d\n",
		comma(e.Apricots), e.Energy, e.MaxEnergy, e.TapLevel, e.BotLevel)
}

func renderTapResult(raw map[string]any) error {
	out, err := decodeInto[economy.TapResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("+%s apricots (%d tap(s))", comma(out.Apricots), out.Taps))
	printState(out.State)
	return nil
}

func renderCheckIn(raw map[string]any) error {
	out, err := decodeInto[economy.CheckInResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Day %d check-in: +%s apricots", out.Streak, comma(out.Reward)))
	printState(out.State)
	return nil
}

func renderCipher(raw map[string]any) error {
	out, err := decodeInto[economy.CipherResult](raw)
	if err != nil {
		return err
	}
	switch {
	case out.Completed:
		printSuccess(fmt.Sprintf("Word solved! +%s apricots", comma(out.Reward)))
	case out.Matched:
		printSuccess(fmt.Sprintf("Correct: %s (%d letter(s) down)", out.Letter, out.State.CipherProgress))
	default:
		printWarn("Wrong letter. Progress reset.")
	}
	return nil
}

func renderExchange(raw map[string]any) error {
	out, err := decodeInto[economy.ExchangeResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Exchanged %s apricots for %s DMC (rate %s:1)",
		comma(out.ApricotsSpent), formatMicros(out.DMCMicros), comma(out.ApricotsPerDMC)))
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No players ranked yet.")
		return nil
	}
	fmt.Printf("%-6s %-18s %14s\n", "RANK", "PLAYER", "APRICOTS")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-18s %14s\n", row.Rank, truncate(row.Username, 18), comma(row.Apricots))
	}
	fmt.Println()
	return nil
}

func renderTasks(raw map[string]any) error {
	out, err := decodeInto[tasksPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TASKS ==")
	if len(out.Tasks) == 0 {
		printInfo("No tasks available.")
		return nil
	}
	fmt.Printf("%-20s %14s\n", "TASK", "REWARD")
	for _, task := range out.Tasks {
		fmt.Printf("%-20s %14s\n", truncate(task.ID, 20), comma(task.Reward))
	}
	fmt.Println()
	return nil
}

func renderSettings(raw map[string]any) error {
	s, err := decodeInto[admin.Settings](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== PLATFORM SETTINGS ==")
	fmt.Printf("Apricots per DMC:  %s\n", comma(s.ApricotsPerDMC))
	fmt.Printf("Platform fee:      %.2f%%\n", s.PlatformFeePercent)
	fmt.Printf("AI enabled:        %t\n", s.AIEnabled)
	fmt.Printf("Cipher reward:     %s\n", comma(s.CipherReward))
	fmt.Printf("Updated at:        %s\n", s.UpdatedAt.Local().Format(time.RFC822))
	fmt.Println()
	return nil
}

func renderSyncResults(raw map[string]any, queued int) error {
	out, err := decodeInto[syncResultsPayload](raw)
	if err != nil {
		return err
	}
	replayed := 0
	for _, r := range out.Results {
		if r.OK {
			replayed++
			continue
		}
		// Duplicate keys mean the server already saw this command.
		if strings.Contains(r.Error, "duplicate") {
			replayed++
			continue
		}
		printWarn(fmt.Sprintf("Replay of %s failed: %s", r.Op, r.Error))
	}
	printSuccess(fmt.Sprintf("Sync complete: replayed=%d queued=%d", replayed, queued))
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMicros(v int64) string {
	text := signedMicros(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / ledger.MicrosPerCoin
	frac := (v % ledger.MicrosPerCoin) / 10_000
	return fmt.Sprintf("%s%s.%02d", sign, comma(whole), frac)
}

func signedMicros(v int64) string {
	if v > 0 {
		return "+" + formatMicros(v)
	}
	return formatMicros(v)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
