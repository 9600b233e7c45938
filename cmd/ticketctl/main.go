// ticketctl is the operator CLI: schema migrations, reference-data seeding,
// token rotation and the initial admin account.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ticketaps/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds a fresh command tree; tests create their own instances.
func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Operator tooling for the ticketing and announcement API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initViper(v, cmd)
		},
	}
	cmd.PersistentFlags().String("config", "", "config file (yaml)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL DSN (default: DATABASE_URL)")
	cmd.PersistentFlags().String("actor", "ticketctl", "name recorded in createby columns")

	cmd.AddCommand(newMigrateCmd(v), newSeedCmd(v), newRotateTokenCmd(v), newBootstrapAdminCmd(v))
	return cmd
}

// initViper layers defaults < config file < TICKETAPS_* env < flags.
func initViper(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix("ticketaps")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v.BindPFlags(cmd.Flags())
}

// loadConfig starts from the shared environment config and applies ticketctl overrides.
func loadConfig(v *viper.Viper) core.Config {
	cfg := core.Load()
	if dsn := v.GetString("database-url"); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	if path := v.GetString("password-file"); path != "" {
		cfg.InitialAdminPasswordPath = path
	}
	return cfg
}

func connect(ctx context.Context, cfg core.Config) (*pgxpool.Pool, error) {
	db, err := core.Connect(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(v)
			ctx := cmd.Context()
			if v.GetBool("status") {
				version, err := core.MigrationVersion(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			}
			if err := core.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().Bool("status", false, "print the current schema version and exit")
	return cmd
}

func newSeedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load reference data and accounts from a YAML bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			bundle, err := core.ParseSeedBundle(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			ctx := cmd.Context()
			db, err := connect(ctx, loadConfig(v))
			if err != nil {
				return err
			}
			defer db.Close()

			seeder := core.Seeder{
				Lookups: core.NewPgLookupRepository(db),
				Staff:   core.NewPgStaffUserRepository(db),
				Airline: core.NewPgAirlineUserRepository(db),
			}
			report, err := seeder.Apply(ctx, bundle, v.GetString("actor"))
			if err != nil {
				return err
			}
			printSeedReport(cmd, report)
			return nil
		},
	}
}

func printSeedReport(cmd *cobra.Command, r core.SeedReport) {
	out := cmd.OutOrStdout()
	for _, section := range core.SeedSections {
		created, skipped := r.Created[section], r.Skipped[section]
		if created == 0 && skipped == 0 {
			continue
		}
		fmt.Fprintf(out, "%-22s created=%d skipped=%d\n", section, created, skipped)
	}
}

func newRotateTokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate-token",
		Short: "Replace an account's token key and print the new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			realm, err := core.ParseRealm(v.GetString("realm"))
			if err != nil {
				return err
			}
			identity := strings.TrimSpace(v.GetString("identity"))
			if identity == "" {
				return errors.New("--identity is required")
			}

			ctx := cmd.Context()
			db, err := connect(ctx, loadConfig(v))
			if err != nil {
				return err
			}
			defer db.Close()

			svc := core.NewRepositoryLoginService(core.NewPgStaffUserRepository(db), core.NewPgAirlineUserRepository(db))
			token, err := svc.RotateToken(ctx, realm, identity)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return fmt.Errorf("no %s account %q", realm, identity)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("realm", "", "staff or airline")
	cmd.Flags().String("identity", "", "staff username or airline user email")
	return cmd
}

func newBootstrapAdminCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the initial admin staff account when none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(v)
			cfg.BootstrapAdminEnabled = true

			ctx := cmd.Context()
			db, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return core.BootstrapAdmin(ctx, core.NewPgStaffUserRepository(db), cfg)
		},
	}
	cmd.Flags().String("password-file", "", "write the generated credentials here instead of the default path")
	return cmd
}
