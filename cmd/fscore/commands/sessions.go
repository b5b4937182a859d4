package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fscore/internal/app"
	"fscore/internal/domain"
)

func sessionsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions <peer>",
		Short: "List forward secrecy sessions with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(a *app.App) error {
				infos, err := a.SessionSvc.ListSessions(domain.Identity(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(infos)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BEST\tSESSION\tSTATE\tSEND\tRECV 2DH\tRECV 4DH\tAPPLIED")
				for _, s := range infos {
					best := ""
					if s.Best {
						best = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%d\t%d\t%d\t%s\n",
						best, s.ID, s.State, s.MyDHType, s.MyCounter, s.PeerCounter2DH, s.PeerCounter4DH, s.OutgoingApplied)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
