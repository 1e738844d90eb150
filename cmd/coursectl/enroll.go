package main

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/coursehub/internal/app"
	"github.com/xenking/coursehub/internal/auth"
	"github.com/xenking/coursehub/internal/domain/enrollment"
	"github.com/xenking/coursehub/internal/storage/postgres"
)

func enrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <user-id> <course-id>",
		Short: "Grant an enrollment without a payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseID := args[0], args[1]

			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if _, err := postgres.NewCourseRepository(pool).GetByID(ctx, courseID); err != nil {
				return errors.Wrapf(err, "course %s", courseID)
			}
			e, created, err := enrollment.NewService(postgres.NewEnrollmentRepository(pool)).Grant(ctx, userID, courseID)
			if err != nil {
				return err
			}

			state := "existing"
			if created {
				state = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", e.ID, e.UserID, e.CourseID, state)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		email string
		role  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token, for support and local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadEnvConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT secret is required: set COURSEHUB_AUTH_JWT_SECRET")
			}

			token, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.CookieName).Issue(auth.Principal{
				UserID: args[0],
				Email:  email,
				Role:   role,
			}, ttl)
			if err != nil {
				return errors.Wrap(err, "issue token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "purchaser email")
	cmd.Flags().StringVar(&role, "role", "", `role, "admin" for the admin routes`)
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
