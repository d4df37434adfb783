package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/manuid/internal/bootstrap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the embedded starter catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		return bootstrap.Seed(cmd.Context(), st)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
