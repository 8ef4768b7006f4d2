package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/db"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/repository"
)

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().String("admin-email", "admin@earn4sub.local", "Email of the admin user to create")
}

// seedTasks is the starter catalog for local environments.
var seedTasks = []struct {
	title    string
	reward   string
	maxLimit int
}{
	{"Subscribe to the partner YouTube channel", "3.8", 0},
	{"Like and comment on the pinned video", "3.8", 0},
	{"Follow the Instagram page", "3.8", 500},
}

// seedID derives a stable id so re-running seed updates rows instead of duplicating them.
func seedID(kind, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("earn4sub:"+kind+":"+key))
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create an admin user and a starter task catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		email, _ := cmd.Flags().GetString("admin-email")
		admin := &models.User{
			ID:        seedID("user", email),
			Email:     email,
			Name:      "Admin",
			Role:      models.RoleAdmin,
			KYCStatus: models.KYCNotSubmitted,
		}
		if err := repository.NewUserRepo(pool).Upsert(ctx, admin); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}

		tasks := repository.NewTaskRepo(pool)
		for _, st := range seedTasks {
			t := &models.Task{
				ID:           seedID("task", st.title),
				Title:        st.title,
				RewardAmount: decimal.RequireFromString(st.reward),
				MaxLimit:     st.maxLimit,
				Active:       true,
			}
			if err := tasks.Upsert(ctx, t); err != nil {
				return fmt.Errorf("seed task %q: %w", st.title, err)
			}
		}
		logger.Info("seeded", "admin_id", admin.ID, "tasks", len(seedTasks))

		tok, err := issueToken(cfg.JWTSecret, admin.ID, models.RoleAdmin, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "admin id: %s\nadmin token: %s\n", admin.ID, tok)
		return nil
	},
}
