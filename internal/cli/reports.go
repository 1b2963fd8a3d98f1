package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/sitewarden/sitewarden/pkg/types"
	"github.com/spf13/cobra"
)

func newReportsCmd() *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List threat reports from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/reports"
			switch view {
			case "", "all":
			case "verified":
				path += "/verified"
			case "pending":
				path += "/pending"
			default:
				return fmt.Errorf("invalid view %q: must be all, verified or pending", view)
			}

			cfg := getClientConfig(cmd)
			var page types.ReportPage
			if err := getJSON(cmd, cfg, path, &page); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tDOMAIN\tACCUSED\tTIME")
			for _, r := range page.Reports {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					r.ID, r.Status, r.Domain, r.AccusedWallet, r.Timestamp.Format("2006-01-02 15:04:05"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d report(s)\n", page.TotalReports)
			return nil
		},
	}

	cmd.Flags().StringVar(&view, "view", "all", "Which partition to list: all, verified or pending")
	return cmd
}
