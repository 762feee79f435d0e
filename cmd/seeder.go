package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/client-portal/internal/auth"
	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
	userpg "github.com/frahmantamala/client-portal/internal/user/postgres"
)

var seedPassword string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample users",
	Long:  `Create or refresh one admin and one client account for development and testing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		initLogger(cfg)

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gdb, err := initGorm(db, cfg.Env)
		if err != nil {
			return fmt.Errorf("failed to init gorm: %w", err)
		}

		hash, err := auth.HashPassword(seedPassword, cfg.Security.BCryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash seed password: %w", err)
		}

		repo := userpg.NewUserRepository(gdb)
		users := []*usermodel.User{
			{Email: "admin@portal.local", Name: "Portal Admin", Role: usermodel.RoleAdmin},
			{Email: "client@portal.local", Name: "Sample Client", Company: "Acme Trading LLC", Role: usermodel.RoleClient},
		}
		for _, u := range users {
			u.PasswordHash = hash
			u.IsActive = true
			if err := repo.Upsert(ctx, u); err != nil {
				return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
			}
			fmt.Printf("Seeded %s user: %s\n", u.Role, u.Email)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPassword, "password", "password", "password for the seeded accounts")
}
