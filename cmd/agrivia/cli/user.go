package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agrivia/accounts/internal/config"
	"github.com/agrivia/accounts/internal/model"
	"github.com/agrivia/accounts/internal/service"
	"github.com/agrivia/accounts/internal/store"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
		Long:  "Create, promote and list accounts directly against the store. Use this to bootstrap the first admin.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserPromoteCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

// withAccounts opens the store and hands the account service to fn.
func withAccounts(fn func(ctx context.Context, accounts *service.AccountService) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, newServices(st, cfg, logger).accounts)
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
		status   string
		admin    bool
		due      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Example: `  agrivia user create --email admin@example.com --name Admin --admin
  agrivia user create --email user@example.com --name User --status trial --due 2026-12-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := service.CreateAccountInput{
				Name:    name,
				Email:   email,
				Status:  status,
				IsAdmin: admin,
			}
			if due != "" {
				d, err := model.ParseDate(due)
				if err != nil {
					return fmt.Errorf("--due must be YYYY-MM-DD: %w", err)
				}
				in.PaymentDueDate = &d
			}

			if password == "" {
				pw, err := promptPassword()
				if err != nil {
					return err
				}
				password = pw
			}
			in.Password = password

			return withAccounts(func(ctx context.Context, accounts *service.AccountService) error {
				acct, err := accounts.CreateAccount(ctx, in)
				if err != nil {
					return err
				}
				role := "user"
				if acct.IsAdmin {
					role = "admin"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (id %d, %s)\n", role, acct.Email, acct.ID, acct.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&status, "status", string(model.StatusActive), "Status: "+strings.Join(model.AllStatuses.Strings(), ", "))
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin access")
	cmd.Flags().StringVar(&due, "due", "", "Payment due date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")

	return cmd
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt on; pass --password")
	}

	fmt.Print("Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}

	if string(pw) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}

// ---------- user promote ----------

func newUserPromoteCmd() *cobra.Command {
	var (
		email  string
		revoke bool
	)

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Grant or revoke admin access",
		Example: `  agrivia user promote --email someone@example.com
  agrivia user promote --email someone@example.com --revoke`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(func(ctx context.Context, accounts *service.AccountService) error {
				acct, err := accounts.SetAdmin(ctx, email, !revoke)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("no account with email %q", email)
					}
					return err
				}
				if acct.IsAdmin {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", acct.Email)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer an admin\n", acct.Email)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Remove admin access instead of granting it")
	cmd.MarkFlagRequired("email")

	return cmd
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(func(ctx context.Context, accounts *service.AccountService) error {
				views, err := accounts.ListAccounts(ctx, time.Now())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(model.NewListResponse(views))
				}

				if len(views) == 0 {
					fmt.Fprintln(out, "No accounts yet. Use 'agrivia user create --admin' to create the first admin.")
					return nil
				}

				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tSTATUS\tADMIN\tDUE")
				for _, v := range views {
					admin := ""
					if v.IsAdmin {
						admin = "yes"
					}
					due := "-"
					if v.PaymentDueDate != nil {
						due = v.PaymentDueDate.Format(model.DateLayout) + " (" + string(v.DueDateStatus) + ")"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", v.ID, v.Email, v.Name, v.Status, admin, due)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
