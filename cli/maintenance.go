package cli

import (
	"fmt"
	"time"

	"github.com/NicoHurtado/cursia-sub002/app"
	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, log, err := app.LoadEnvironment()
			if err != nil {
				return err
			}
			defer log.Sync()

			// OpenDatabase runs AutoMigrate.
			store, err := app.OpenDatabase(env, log)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	Email    string
	Password string
}

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	opts := &SeedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin user and a demo course",
		Long: `Create the admin user and a demo course.

Credentials default to ADMIN_EMAIL and ADMIN_PASSWORD. Seeding is skipped when
an admin already exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, log, err := app.LoadEnvironment()
			if err != nil {
				return err
			}
			defer log.Sync()

			if opts.Email == "" {
				opts.Email = env.ADMIN_EMAIL
			}
			if opts.Password == "" {
				opts.Password = env.ADMIN_PASSWORD
			}

			store, err := app.OpenDatabase(env, log)
			if err != nil {
				return err
			}
			defer store.Close()

			return database.NewSeeder(store.GetDB(), log).SeedAll(opts.Email, opts.Password)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "admin email (default $ADMIN_EMAIL)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "admin password (default $ADMIN_PASSWORD)")

	return cmd
}

// NewExpireSubscriptionsCommand runs the expiration sweep once, for hosts that
// schedule it outside the process.
func NewExpireSubscriptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-subscriptions",
		Short: "Downgrade users whose cancelled subscription has lapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, log, err := app.LoadEnvironment()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := app.OpenDatabase(env, log)
			if err != nil {
				return err
			}
			defer store.Close()

			// The sweep only touches the database, no gateway is needed.
			subs := services.NewSubscriptionService(store.GetDB(), nil, nil, "", log)
			n, err := subs.ExpireSubscriptions(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downgraded %d users\n", n)
			return nil
		},
	}
}
