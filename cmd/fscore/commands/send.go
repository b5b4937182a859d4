package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fscore/internal/app"
	"fscore/internal/domain"
)

// send <peer> <message>: encrypt and send a text message to <peer>.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(a *app.App) error {
				id, err := a.Messages.SendMessage(cmd.Context(), domain.Identity(args[0]), domain.MessageTypeText, []byte(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", id)
				return nil
			})
		},
	}
}
