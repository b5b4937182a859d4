package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fscore/internal/app"
	"fscore/internal/domain"
)

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <peer>",
		Short: "Terminate all forward secrecy sessions with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(a *app.App) error {
				n, err := a.SessionSvc.ResetSessions(cmd.Context(), domain.Identity(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Terminated %d session(s)\n", n)
				return nil
			})
		},
	}
}
