package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fscore/internal/domain"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <identity>",
		Short: "Generate identity keys and store them securely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return errNoPassphrase
			}
			fp, err := wire.Identity.GenerateIdentity(domain.Identity(args[0]), passphrase)
			if err != nil {
				return err
			}
			if _, err := wire.Devices.LoadOrCreateDeviceKey(passphrase); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity %s created.\nFingerprint: %s\n", args[0], fp)
			return nil
		},
	}
}
