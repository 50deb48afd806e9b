package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"confreg.org/internal/config"
	"confreg.org/internal/migrate"
	"confreg.org/internal/registry"
	"confreg.org/internal/store/pg"
)

const dsnEnv = "CONFREG_PG_DSN"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:           "confreg-migrate",
		Short:         "Manage the conference registration database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide via --dsn or %s", dsnEnv)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv(dsnEnv), "PostgreSQL DSN")

	withManager := func(fn func(*cobra.Command, *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) (err error) {
			mgr, err := migrate.NewManager(dsn)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, mgr.Close()) }()
			return fn(cmd, mgr)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				if err := mgr.Up(); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				cmd.Println("migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				if err := mgr.Down(); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				cmd.Println("rolled back one migration")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				lines, err := mgr.Status()
				if err != nil {
					return err
				}
				for _, l := range lines {
					cmd.Println(l)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				v, dirty, err := mgr.Version()
				if err != nil {
					return err
				}
				cmd.Printf("version %d (dirty=%t)\n", v, dirty)
				return nil
			}),
		},
		newBootstrapAdminCmd(&dsn),
	)
	return cmd
}

// newBootstrapAdminCmd creates the first super administrator. Admins are
// never created over HTTP.
func newBootstrapAdminCmd(dsn *string) *cobra.Command {
	var req registry.CreateAdminRequest
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create a super administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				req.Password = os.Getenv(config.AdminPasswordEnv)
			}
			store, err := pg.Open(*dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := store.WaitReady(ctx, 5, 500*time.Millisecond); err != nil {
				return fmt.Errorf("database not reachable: %w", err)
			}
			admin, err := registry.NewService(store).CreateAdmin(ctx, req)
			if err != nil {
				var verr *registry.ValidationError
				if errors.As(err, &verr) {
					for _, f := range verr.Fields {
						cmd.PrintErrf("  %s: %s\n", f.Field, f.Message)
					}
				}
				return fmt.Errorf("create admin: %w", err)
			}
			cmd.Printf("created super admin %q (id %d)\n", admin.Username, admin.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Fullname, "fullname", "", "administrator full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "administrator email")
	cmd.Flags().StringVar(&req.Username, "username", "", "administrator username")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (default: $"+config.AdminPasswordEnv+")")
	return cmd
}
