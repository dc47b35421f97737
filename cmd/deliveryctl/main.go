package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"client-delivery-backend/internal/app"
	"client-delivery-backend/internal/config"
	"client-delivery-backend/internal/database"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "deliveryctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliveryctl",
		Short: "Operator CLI for the client delivery backend",
		Long: `deliveryctl runs maintenance tasks against the configured database and
integrations: schema migrations, Frame.io credential checks and manual
project reconciliation. It reads the same environment as the server.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCmd(),
		newTokenCmd(),
		newOAuthCmd(),
		newReconcileCmd(),
	)
	return cmd
}

// withApp builds the services for one command and closes them afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.NewLogger(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newMigrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.DB == nil {
					return fmt.Errorf("migrate requires STORE_BACKEND=postgres")
				}
				if dryRun {
					pending, err := database.NewMigrator(a.DB, a.Logger).Pending(ctx)
					if err != nil {
						return err
					}
					if len(pending) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					}
					for _, name := range pending {
						fmt.Fprintln(cmd.OutOrStdout(), "pending:", name)
					}
					return nil
				}
				return a.Migrate(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List pending migrations without applying them")
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect or refresh the Frame.io credential",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the credential health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := a.Frameio.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s", st.Service, st.State)
				if !st.ExpiresAt.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "\texpires %s", st.ExpiresAt.Format("2006-01-02 15:04 MST"))
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the credential now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				tok, err := a.Frameio.Refresh(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refreshed, expires %s\n", tok.ExpiresAt.Format("2006-01-02 15:04 MST"))
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "check",
		Short: "Run one supervisor pass, refreshing and alerting as needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := a.Supervisor.RunOnce(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", res)
				return nil
			})
		},
	})
	return cmd
}

func newOAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Frame.io authorization helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print a single-use consent URL for connecting Frame.io",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				url, err := a.Frameio.AuthURL(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	})
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <project-id>",
		Short: "Reconcile one project with Frame.io",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid project id: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Reconciler.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "status=%s new_files=%d transitioned=%t\n",
					res.Project.Status, res.NewFiles, res.Transitioned)
				if res.Delivery != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "delivery=%s (%s)\n", res.Delivery.Filename, res.Delivery.AssetID)
				}
				return nil
			})
		},
	}
}
