package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goGate/keys"
)

var keyDir string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the Ed25519 signing keypair if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ring, created, err := keys.LoadOrGenerate(keyDir)
		if err != nil {
			return err
		}
		defer ring.Destroy()

		status := "existing"
		if created {
			status = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s keypair in %s (kid %s)\n", status, keyDir, ring.KeyID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keyDir, "dir", "keys", "Directory holding the keypair")
}
