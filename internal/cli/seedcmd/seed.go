package seedcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openroster/roster/internal/auth/password"
	"github.com/openroster/roster/internal/cli/common"
	"github.com/openroster/roster/internal/db"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
)

// New returns the `roster seed-admin` command. It creates the first ADMIN
// account so a fresh deployment can log in.
func New() *cobra.Command {
	var cfgFile, name, email, pass string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the initial admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || pass == "" {
				return fmt.Errorf("--email and --password are required")
			}
			v, err := common.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			common.SetupLogger(v.GetString("log.level"), v.GetString("log.format"))

			gdb, err := db.Open(v.GetString("db.dsn"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			if err := usersgorm.AutoMigrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			ctx := context.Background()
			repo := usersgorm.NewRepo(gdb)
			if _, err := repo.GetActiveByEmail(ctx, email); err == nil {
				return fmt.Errorf("user %s already exists", email)
			}
			hash, err := password.Hash(pass)
			if err != nil {
				return err
			}
			u := &usersgorm.UserRecord{
				Name:         name,
				Email:        email,
				PasswordHash: hash,
				Role:         usersgorm.RoleAdmin,
				Active:       true,
			}
			if err := repo.Create(ctx, u); err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Printf("created admin %s (id %d)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&pass, "password", "", "initial password")
	return cmd
}
