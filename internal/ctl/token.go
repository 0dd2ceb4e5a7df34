package ctl

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/recoveryhub/internal/app/store/audit"
	userstore "github.com/dalemusser/recoveryhub/internal/app/store/users"
	"github.com/dalemusser/recoveryhub/internal/app/system/auditlog"
	"github.com/dalemusser/recoveryhub/internal/app/system/auth"
	"github.com/dalemusser/recoveryhub/internal/app/system/normalize"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// maxTokenTTL caps minted tokens; disabling a user is the only revocation.
const maxTokenTTL = 30 * 24 * time.Hour

func newTokenCmd(a *app) *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for a staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 || ttl > maxTokenTTL {
				return fmt.Errorf("ttl must be between 1s and %s", maxTokenTTL)
			}
			oid, err := primitive.ObjectIDFromHex(userID)
			if err != nil {
				return fmt.Errorf("bad user id %q", userID)
			}
			tokens, err := auth.NewTokens(a.settings.JWTSecret, a.settings.JWTIssuer)
			if err != nil {
				return fmt.Errorf("RECOVERYHUB_JWT_SECRET: %w", err)
			}

			ctx := cmd.Context()
			db, closeDB, err := a.mongo(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			u, err := userstore.New(db).GetByID(ctx, oid)
			if err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return fmt.Errorf("no user with id %s", userID)
				}
				return err
			}
			if normalize.Status(u.Status) == models.UserStatusDisabled {
				return fmt.Errorf("user %s is disabled", userID)
			}

			raw, jti, err := tokens.Issue(u.ID.Hex(), string(u.Role), ttl)
			if err != nil {
				return err
			}
			auditlog.New(audit.New(db), a.log, auditlog.Config{Auth: a.settings.AuditAuth}).
				TokenIssued(ctx, u.ID, jti, int64(ttl/time.Second))
			a.log.Info("token issued", zap.String("user_id", u.ID.Hex()), zap.String("jti", jti))

			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (hex)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
