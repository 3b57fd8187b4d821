package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/repository"
	"github.com/noah-isme/vikar-api/internal/service"
)

type shiftCompleter interface {
	CompletePast(ctx context.Context) (int, error)
}

type userCreator interface {
	Create(ctx context.Context, user *models.User) error
}

func completeShiftsCmd(completer func() shiftCompleter) *cobra.Command {
	return &cobra.Command{
		Use:   "complete-shifts",
		Short: "Mark ended published or full shifts as completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := completer().CompletePast(cmd.Context())
			if err != nil {
				return fmt.Errorf("complete shifts: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d shift(s)\n", n)
			return nil
		},
	}
}

func createUserCmd(users func() userCreator) *cobra.Command {
	var email, name, role, password string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account with any role, including ADMIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := models.ParseRole(role)
			if err != nil {
				return fmt.Errorf("invalid role %q: %w", role, err)
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			hash, err := service.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			user := &models.User{
				Email:        strings.ToLower(strings.TrimSpace(email)),
				FullName:     strings.TrimSpace(name),
				Role:         parsed,
				PasswordHash: hash,
				Active:       true,
			}
			if err := users().Create(cmd.Context(), user); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return fmt.Errorf("a user with email %s already exists", user.Email)
				}
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&role, "role", "", "COMPANY, WORKER or ADMIN")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	for _, f := range []string{"email", "name", "role", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
