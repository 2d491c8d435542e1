package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rvpalivoda/authsession"
)

func loginCmd() *cobra.Command {
	var password, captcha string
	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			if err := a.session.Login(ctx, args[0], password, captcha); err != nil {
				return err
			}
			return a.printIdentity()
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&captcha, "captcha", "", "captcha answer")
	return cmd
}

func registerCmd() *cobra.Command {
	var password, captcha string
	cmd := &cobra.Command{
		Use:   "register USERNAME",
		Short: "Create an account and print its recovery words",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			words, err := a.session.Register(ctx, args[0], password, captcha)
			if err != nil {
				return err
			}
			return a.printWords(words)
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&captcha, "captcha", "", "captcha answer")
	return cmd
}

func recoverCmd() *cobra.Command {
	var (
		captcha     string
		newPassword string
		words       []string
	)
	cmd := &cobra.Command{
		Use:   "recover USERNAME",
		Short: "Recover an account with its recovery words",
		Long: "Without --word, prints the word positions the server asks for. " +
			"Repeat the command with one --word per position, in order.",
		Args: cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			ch, err := a.session.RecoveryChallenge(ctx, args[0])
			if err != nil {
				return err
			}
			if len(words) == 0 {
				return a.printJSON(ch)
			}
			if len(words) != len(ch.Positions) {
				return fmt.Errorf("server asked for %d words, got %d", len(ch.Positions), len(words))
			}
			err = a.session.Recover(ctx, authsession.RecoverRequest{
				Username:    args[0],
				Words:       words,
				Indices:     ch.Positions,
				Captcha:     captcha,
				NewPassword: newPassword,
			})
			if err != nil {
				return err
			}
			return a.printIdentity()
		}),
	}
	cmd.Flags().StringVar(&captcha, "captcha", "", "captcha answer")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "reset the password as part of recovery")
	cmd.Flags().StringArrayVar(&words, "word", nil, "recovery word, repeated in position order")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			return a.session.Logout(ctx)
		}),
	}
}

func renewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Exchange the refresh credential for a new pair",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			if _, err := a.session.Renew(ctx); err != nil {
				return err
			}
			return a.printIdentity()
		}),
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the stored identity",
		Args:  cobra.NoArgs,
		RunE: run(func(_ context.Context, a *app, _ []string) error {
			return a.printIdentity()
		}),
	}
}

func requestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request METHOD PATH [BODY]",
		Short: "Send an authenticated JSON request and print the response",
		Args:  cobra.RangeArgs(2, 3),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			var body any
			if len(args) == 3 {
				raw := json.RawMessage(args[2])
				if !json.Valid(raw) {
					return errors.New("body is not valid JSON")
				}
				body = raw
			}
			var out json.RawMessage
			err := a.session.Gateway().Request(ctx, strings.ToUpper(args[0]), args[1], body, &out)
			if err != nil {
				return err
			}
			if len(out) == 0 {
				return nil
			}
			return a.printJSON(out)
		}),
	}
}

func passwordCmd() *cobra.Command {
	var current, next string
	change := &cobra.Command{
		Use:   "change",
		Short: "Change the account password",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			return a.session.ChangePassword(ctx, current, next)
		}),
	}
	change.Flags().StringVar(&current, "current", "", "current password")
	change.Flags().StringVar(&next, "new", "", "new password")

	var password string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check a password against the account",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			ok, err := a.session.VerifyPassword(ctx, password)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]bool{"verified": ok})
		}),
	}
	verify.Flags().StringVarP(&password, "password", "p", "", "password to check")

	cmd := &cobra.Command{Use: "password", Short: "Manage the account password"}
	cmd.AddCommand(change, verify)
	return cmd
}

func pinCmd() *cobra.Command {
	var password string
	set := &cobra.Command{
		Use:   "set PIN",
		Short: "Set the account PIN code",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			if _, err := strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("pin must be numeric")
			}
			return a.session.SetPinCode(ctx, password, args[0])
		}),
	}
	set.Flags().StringVarP(&password, "password", "p", "", "account password")

	cmd := &cobra.Command{Use: "pin", Short: "Manage the account PIN code"}
	cmd.AddCommand(set)
	return cmd
}

func twoFACmd() *cobra.Command {
	var password string
	enable := &cobra.Command{
		Use:   "enable",
		Short: "Start two-factor enrollment and print the secret",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			setup, err := a.session.Enable2FA(ctx, password)
			if err != nil {
				return err
			}
			return a.printJSON(setup)
		}),
	}
	enable.Flags().StringVarP(&password, "password", "p", "", "account password")

	verify := &cobra.Command{
		Use:   "verify CODE",
		Short: "Confirm two-factor enrollment with a generated code",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			ok, err := a.session.Verify2FA(ctx, args[0])
			if err != nil {
				return err
			}
			return a.printJSON(map[string]bool{"verified": ok})
		}),
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Turn two-factor authentication off",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			return a.session.Disable2FA(ctx, password)
		}),
	}
	disable.Flags().StringVarP(&password, "password", "p", "", "account password")

	cmd := &cobra.Command{Use: "2fa", Short: "Manage two-factor authentication"}
	cmd.AddCommand(enable, verify, disable)
	return cmd
}

func wordsCmd() *cobra.Command {
	var password string
	regenerate := &cobra.Command{
		Use:   "regenerate",
		Short: "Replace the recovery words and print the new ones",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			words, err := a.session.RegenerateWords(ctx, password)
			if err != nil {
				return err
			}
			return a.printWords(words)
		}),
	}
	regenerate.Flags().StringVarP(&password, "password", "p", "", "account password")

	cmd := &cobra.Command{Use: "words", Short: "Manage recovery words"}
	cmd.AddCommand(regenerate)
	return cmd
}

func (a *app) printIdentity() error {
	id, ok := a.session.Identity()
	if !ok {
		return a.printJSON(map[string]string{"state": a.session.State().String()})
	}
	return a.printJSON(struct {
		State string `json:"state"`
		authsession.Identity
	}{a.session.State().String(), id})
}

func (a *app) printWords(words authsession.Mnemonic) error {
	for i, w := range words {
		if _, err := fmt.Fprintf(a.out, "%2d %s\n", i+1, w); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
