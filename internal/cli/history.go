package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigiauto/vigiauto/internal/storage"
)

func newHistoryCommand() *cobra.Command {
	var (
		brand string
		limit int
		days  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored search runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			if backend == nil {
				return fmt.Errorf("no storage backend configured; set storage.backend")
			}
			defer backend.Close()

			filter := storage.Filter{Brand: brand, Limit: limit}
			if days > 0 {
				since := time.Now().AddDate(0, 0, -days)
				filter.Since = &since
			}
			recs, err := backend.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tQUERY\tITEMS\tSITES OK\tDURATION")
			for _, r := range recs {
				items, sitesOk := 0, 0
				if r.Result != nil {
					items = r.Result.Stats.TotalItems
					sitesOk = r.Result.Stats.SitesScraped
				}
				fmt.Fprintf(tw, "%s\t%s %s\t%d\t%d\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Query.Brand, r.Query.Model, items, sitesOk, r.Duration)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&brand, "brand", "", "filter by brand")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().IntVar(&days, "days", 0, "only runs from the last N days")
	return cmd
}
