package commands

import (
	"fmt"

	"github.com/couchcryptid/margdarshak/internal/auth"
	"github.com/spf13/cobra"
)

func createUserCmd(opts *options) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "create-user <username> <password>",
		Short: "Create a dashboard user with a bcrypt-hashed password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.services.Auth.CreateUser(cmd.Context(), args[0], args[1], role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "user role (user or admin)")
	return cmd
}
