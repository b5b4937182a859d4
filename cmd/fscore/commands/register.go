package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fscore/internal/app"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Publish your contact entry to the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(a *app.App) error {
				if err := a.Directory.Register(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s with relay\n", a.Local.Identity())
				return nil
			})
		},
	}
}
