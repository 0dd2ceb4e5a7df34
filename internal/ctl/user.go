package ctl

import (
	"errors"
	"fmt"

	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/auditlog"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// minPasswordLen for accounts created from the command line.
const minPasswordLen = 12

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(newUserCreateCmd(a), newUserDisableCmd(a))
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var name, email, role, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := models.ParseRole(role)
			if !ok {
				return userstore.ErrBadRole
			}
			if len(password) < minPasswordLen {
				return fmt.Errorf("password must be at least %d characters", minPasswordLen)
			}

			ctx := cmd.Context()
			db, closeDB, err := a.mongo(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			u, err := userstore.New(db).Create(ctx, models.User{
				FullName: name,
				Email:    email,
				Role:     r,
			}, password)
			if err != nil {
				return err
			}

			auditlog.New(audit.New(db), a.log, auditlog.Config{Auth: a.settings.AuditAuth}).
				UserCreated(ctx, nil, u.ID, string(u.Role))
			a.log.Info("user created", zap.String("user_id", u.ID.Hex()), zap.String("role", string(u.Role)))

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID.Hex(), u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "sign-in email")
	cmd.Flags().StringVar(&role, "role", "", "admin, clinical_director, counselor, nurse, therapist or staff")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	for _, f := range []string{"name", "email", "role", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newUserDisableCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable a staff account; its sessions and tokens stop working on the next request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := a.mongo(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			users := userstore.New(db)
			u, err := users.GetByEmail(ctx, email)
			if err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return fmt.Errorf("no user with email %q", email)
				}
				return err
			}
			if err := users.SetStatus(ctx, u.ID, models.UserStatusDisabled); err != nil {
				return err
			}
			a.log.Info("user disabled", zap.String("user_id", u.ID.Hex()))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tdisabled\n", u.ID.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "sign-in email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
