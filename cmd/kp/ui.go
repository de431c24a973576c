package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"kingpot/internal/game"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
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

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Fprintf(os.Stderr, "%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if pw := strings.TrimSpace(string(raw)); pw != "" {
			return pw, nil
		}
		printWarn(label + " is required.")
	}
}

// promptAmount asks for a coin amount, defaulting to minMicros.
func promptAmount(label string, minMicros int64) (string, error) {
	def := game.FormatCoins(minMicros)
	for {
		fmt.Printf("%s [%s]: ", label, def)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return def, nil
		}
		v, err := game.ParseCoins(text)
		if err == nil && v >= minMicros {
			return text, nil
		}
		printWarn(fmt.Sprintf("Enter at least %s coins.", def))
	}
}

func renderGame(v game.GameView, remaining *game.RemainingView, me string) {
	accent.Printf("\n== ROUND %d ==\n", v.Round)
	king := v.King
	switch {
	case king == "":
		king = "(vacant)"
	case me != "" && king == me:
		king += success.Sprint(" (you)")
	}
	state := success.Sprint("open")
	if v.Ended {
		state = danger.Sprint("settled")
	}
	fmt.Printf("State:        %s\n", state)
	fmt.Printf("King:         %s\n", king)
	fmt.Printf("Pot:          %s coins\n", formatMicros(v.PotMicros))
	fmt.Printf("Claim fee:    %s coins\n", formatMicros(v.ClaimFeeMicros))
	fmt.Printf("Fee growth:   %s\n", v.FeeGrowth)
	fmt.Printf("Platform fee: %s\n", v.PlatformFeePct)
	fmt.Printf("Grace:        %s\n", (time.Duration(v.GracePeriodSecs) * time.Second).String())
	fmt.Printf("Claimants:    %d (min %d)\n", v.Claimants, v.MinClaimants)
	if !v.LastClaimTime.IsZero() {
		fmt.Printf("Last claim:   %s\n", v.LastClaimTime.Local().Format(time.RFC1123))
	}
	if remaining != nil {
		fmt.Printf("Remaining:    %s\n", formatRemaining(remaining.RemainingSecs))
	}
	fmt.Println()
}

func renderClaim(r game.ClaimResult) {
	printSuccess(fmt.Sprintf("You hold the throne in round %d.", r.Round))
	fmt.Printf("Paid:         %s coins (platform %s)\n", formatMicros(r.PaymentMicros), formatMicros(r.PlatformCutMicros))
	fmt.Printf("Pot:          %s coins\n", formatMicros(r.NewPotMicros))
	fmt.Printf("Next fee:     %s coins\n", formatMicros(r.NewFeeMicros))
	fmt.Printf("Wallet:       %s coins\n", formatMicros(r.WalletMicros))
}

func renderWinnings(w game.WinningsView) {
	accent.Println("Winnings")
	fmt.Printf("Pending:      %s coins\n", colorizeMicros(w.PendingMicros))
	fmt.Printf("Wallet:       %s coins\n", formatMicros(w.WalletMicros))
}

func colorizeMicros(v int64) string {
	text := formatMicros(v)
	if v > 0 {
		return success.Sprint(text)
	}
	return neutral.Sprint(text)
}

func formatRemaining(secs float64) string {
	if secs <= 0 {
		return "expired"
	}
	return (time.Duration(secs * float64(time.Second))).Round(time.Second).String()
}

// formatMicros renders micros with thousands separators and six decimals.
func formatMicros(v int64) string {
	s := game.FormatCoins(v)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + s
	}
	return sign + comma(n) + "." + frac
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
