package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fscore/internal/app"
)

// recv: fetch and decrypt queued messages.
func recvCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(a *app.App) error {
				msgs, err := a.Messages.ReceiveMessages(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					marker := " "
					if m.ForwardSecure {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s[%s] %s\n", marker, m.From, string(m.Plaintext))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages to fetch (0 = all)")
	return cmd
}
