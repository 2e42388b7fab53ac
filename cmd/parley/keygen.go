package main

import (
	"fmt"
	"path/filepath"

	"github.com/cmwaters/parley/config"
	"github.com/cmwaters/parley/identity"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen [file]",
	Short: "Generate a persistent network key",
	Long: `Generate an ed25519 key so that the peer keeps the same identity across
restarts. Point identity.key_file (or --key-file) at the written file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(config.ConfigDir(), "identity.key")
		if len(args) == 1 {
			path = args[0]
		}
		priv, err := identity.WriteKeyFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		id, err := peer.IDFromPrivateKey(priv)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote key for %s to %s\n", id, path)
		return nil
	},
}
