package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "role <email> <user|admin>",
		Short: "Assign a role to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, configFrom(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			email := strings.ToLower(strings.TrimSpace(args[0]))
			u, err := a.store.GetUserByEmail(ctx, email)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("no account for %s", email)
			}
			if err := a.auth.AssignRole(ctx, u.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, args[1])
			return nil
		},
	})
	return cmd
}
