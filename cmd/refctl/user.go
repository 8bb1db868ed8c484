package main

import (
	"fmt"

	"github.com/jo-hoe/refshelf/internal/backend/auth"
	"github.com/spf13/cobra"
)

type userOptions struct {
	Email    string
	Password string
}

func addUser(topLevel *cobra.Command, root *rootOptions) {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	o := &userOptions{}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Example: `
refctl user add --email artist@example.com --password 'correct horse'
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			// account creation never touches sessions
			user, err := auth.NewService(s, nil).SignUp(cmd.Context(), o.Email, o.Password)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Email, user.ID)
			return err
		},
	}
	add.Flags().StringVar(&o.Email, "email", "", "Email address of the account.")
	add.Flags().StringVar(&o.Password, "password", "", "Password of the account.")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	topLevel.AddCommand(cmd)
}
