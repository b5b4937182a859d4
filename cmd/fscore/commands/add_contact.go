package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fscore/internal/app"
	"fscore/internal/crypto"
	"fscore/internal/domain"
)

func addContactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-contact <identity>",
		Short: "Look a peer up on the relay and remember it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(a *app.App) error {
				c, err := a.Directory.AddContact(cmd.Context(), domain.Identity(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s\nFingerprint: %s\nForward secrecy: %t\n",
					c.Identity, crypto.Fingerprint(c.PublicKey), c.SupportsForwardSecrecy())
				return nil
			})
		},
	}
}
