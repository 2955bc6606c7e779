package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the sessions table and indexes if they do not exist",
	Long: `Opening a SQL backend applies its embedded schema idempotently. Key-value
backends create their bucket or need nothing, so migrate only verifies the
connection for them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "schema ready (backend: %s)\n", e.cfg.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
