package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-records/internal/config"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository/postgres"
	"github.com/jwalitptl/clinic-records/internal/service/auth"
	pkgauth "github.com/jwalitptl/clinic-records/pkg/auth"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/security"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("schema applied", "database", cfg.Database.Name)
			return nil
		},
	}
}

func newUserCmd(configPath *string) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	var name, email, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a doctor or secretary account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, err := newAuthService(cfg, db, log)
			if err != nil {
				return err
			}
			u, err := svc.CreateUser(cmd.Context(), name, email, password, model.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().StringVar(&role, "role", string(model.RoleSecretary), "doctor or secretary")
	for _, f := range []string{"name", "email", "password"} {
		_ = create.MarkFlagRequired(f)
	}

	user.AddCommand(create)
	return user
}

func newAuthService(cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*auth.Service, error) {
	hasher, err := security.NewBcryptHasher(bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	jwtSvc := pkgauth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	return auth.NewService(postgres.NewUserRepository(db), jwtSvc, hasher, log), nil
}
