package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var confirmClear bool

var destroyCmd = &cobra.Command{
	Use:   "destroy <token>",
	Short: "Destroy a single session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		if err := e.store.Destroy(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "destroyed %s\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmClear {
			return errors.New("refusing to delete every session without --yes")
		}
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		if err := e.store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "all sessions deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(destroyCmd, clearCmd)
	clearCmd.Flags().BoolVar(&confirmClear, "yes", false, "Confirm deleting every session")
}
