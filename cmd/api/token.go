package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/auth"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("role", models.RoleUser, "Token role (user|admin)")
	tokenCmd.Flags().Duration("ttl", auth.DefaultTTL, "Token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Print a signed bearer token for a user id",
	Long: `Sign a bearer token with JWT_SECRET. Login lives in the account service; this is for
operators and local testing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, _, err := setup()
		if err != nil {
			return err
		}
		tok, err := issueToken(cfg.JWTSecret, userID, role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func issueToken(secret string, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	return auth.NewService(secret, nil).Issue(userID, role, ttl)
}
