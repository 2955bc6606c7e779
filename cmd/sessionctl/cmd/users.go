package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionstore/session"
)

var forceString bool

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List identities that own at least one session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		users, err := e.store.AuthenticatedUserIDs(cmd.Context())
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.Kind(), u)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <user>",
	Short: "List the session ids owned by a user",
	Long: `Lists session ids in ascending order. A user that parses as a 32-bit
integer is treated as numeric unless --string is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := session.ParseUserID(args[0], forceString)
		if err != nil {
			return err
		}
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		ids, err := e.store.SessionIDsOf(cmd.Context(), userID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <user>",
	Short: "Destroy every session owned by a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := session.ParseUserID(args[0], forceString)
		if err != nil {
			return err
		}
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		if err := e.store.DestroyAllSessionsOf(cmd.Context(), userID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked all sessions of %s user %s\n", userID.Kind(), userID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd, sessionsCmd, revokeCmd)
	for _, c := range []*cobra.Command{sessionsCmd, revokeCmd} {
		c.Flags().BoolVar(&forceString, "string", false, "Treat the user as a string identity even if it is numeric")
	}
}
