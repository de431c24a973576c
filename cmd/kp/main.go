package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	cl "kingpot/internal/cli"
	"kingpot/internal/config"
	"kingpot/internal/game"
	"kingpot/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "kp",
		Short:        "King of the pot CLI client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newStatusCmd(&apiBase),
		newClaimCmd(&apiBase),
		newDeclareCmd(&apiBase),
		newWinningsCmd(&apiBase),
		newWithdrawCmd(&apiBase),
		newRoundCmd(&apiBase),
		newSyncCmd(&apiBase),
		newWatchCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Signup(ctx, email, password)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `kp login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				Identity:     session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password, or store an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token = strings.TrimSpace(token); token != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				session, err := newClient(apiBase).TokenSession(ctx, token)
				if err != nil {
					return fmt.Errorf("token rejected: %w", err)
				}
				if err := cl.SaveSession(session); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Token saved for %s.", session.Who()))
				return nil
			}
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				Identity:     session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "store a static API token instead of logging in")
	return cmd
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

func newStatusCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show the current round",
		Aliases: []string{"game"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			view, err := client.Game(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			var remaining *game.RemainingView
			if view.RemainingExposed {
				if r, err := client.Remaining(ctx, sess.AccessToken); err == nil {
					remaining = &r
				}
			}
			printInfo(fmt.Sprintf("Signed in as %s", sess.Who()))
			renderGame(view, remaining, sess.Identity)
			return nil
		},
	}
}

func newClaimCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "claim [amount]",
		Short: "Pay at least the current fee to take the throne",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)

			amount := ""
			if len(args) > 0 {
				amount = strings.TrimSpace(args[0])
			} else {
				view, err := client.Game(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				amount, err = promptAmount("Payment", view.ClaimFeeMicros)
				if err != nil {
					return err
				}
			}
			if _, err := game.ParseCoins(amount); err != nil {
				return err
			}

			idem := uuid.NewString()
			out, err := client.Claim(ctx, sess.AccessToken, amount, idem)
			if err != nil {
				return err
			}
			renderClaim(out)
			return nil
		},
	}
}

func newDeclareCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "declare",
		Short: "Settle the round once the grace period has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Declare(ctx, sess.AccessToken)
			if cl.IsKind(err, game.KindGraceNotExpired) {
				printWarn("The grace period has not run out yet.")
				return nil
			}
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Round %d settled: %s wins %s coins.", out.Round, out.Winner, formatMicros(out.AmountMicros)))
			return nil
		},
	}
}

func newWinningsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "winnings",
		Short: "Show pending winnings and wallet balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Winnings(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderWinnings(out)
			return nil
		},
	}
}

func newWithdrawCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw",
		Short: "Move pending winnings into your wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Withdraw(ctx, sess.AccessToken)
			if err != nil {
				if cl.IsKind(err, game.KindNoWinnings) {
					printInfo("Nothing to withdraw.")
					return nil
				}
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/winnings/withdraw",
					IdempotencyKey: uuid.NewString(),
				})
			}
			printSuccess(fmt.Sprintf("Withdrew %s coins. Wallet: %s", formatMicros(out.AmountMicros), formatMicros(out.WalletMicros)))
			return nil
		},
	}
}

func newRoundCmd(apiBase *string) *cobra.Command {
	round := &cobra.Command{
		Use:   "round",
		Short: "Round management",
	}
	round.AddCommand(&cobra.Command{
		Use:   "next",
		Short: "Open the next round after the current one has been settled",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).StartRound(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Round %d open. Entry fee %s coins, grace %ds.", out.Round, formatMicros(out.InitialFeeMicros), out.GracePeriodSecs))
			return nil
		},
	})
	return round
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
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

			remaining, results := syncq.Replay(ctx, queue, func(ctx context.Context, q syncq.Command) error {
				_, err := client.Do(ctx, q.Method, q.Path, sess.AccessToken, q.Body, q.IdempotencyKey)
				return err
			})
			success := 0
			for _, r := range results {
				if r.Err != nil {
					printError(fmt.Sprintf("Sync failed for %s %s: %v", r.Command.Method, r.Command.Path, r.Err))
					continue
				}
				success++
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", success, len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError keeps cmd for `kp sync` when the API could not be
// reached. Errors the API itself returned are passed through.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", errors.Join(err, qerr))
	}
	printWarn("API unreachable; queued for `kp sync`.")
	return nil
}
