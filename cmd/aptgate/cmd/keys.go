package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Apt-Gate/Aptgate/internal/adapter/outbound/verify/openpgp"
	"github.com/Apt-Gate/Aptgate/internal/config"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys loaded from the configured signature keyring",
	Long: `List the OpenPGP keys Aptgate would use to verify Release signatures.

Reads verify.keyring_path from the loaded config and prints each key's
ID, creation time, and identities. Useful for confirming a keyring swap
took effect without starting the server.`,
	RunE: runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Verify.KeyringPath == "" {
		fmt.Fprintln(os.Stderr, "no verify.keyring_path configured; signature verification is disabled")
		return nil
	}

	verifier, err := openpgp.New(cfg.Verify.KeyringPath)
	if err != nil {
		return fmt.Errorf("failed to load signature keyring: %w", err)
	}

	keys := verifier.Keys()
	if len(keys) == 0 {
		fmt.Printf("keyring %s contains no keys\n", cfg.Verify.KeyringPath)
		return nil
	}

	fmt.Printf("keyring: %s (%d key(s))\n\n", cfg.Verify.KeyringPath, len(keys))
	for _, k := range keys {
		fmt.Printf("  %s  created %s\n", k.KeyID, k.CreationTime.Format("2006-01-02"))
		for _, uid := range k.UserIDs {
			fmt.Printf("    %s\n", uid)
		}
	}
	return nil
}
