package main

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/archivist/config"
	"github.com/mohammad-safakhou/archivist/internal/index"
	"github.com/spf13/cobra"
)

func searchCMD(cfgPath *string) *cobra.Command {
	var k int
	var search = &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over indexed messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Index.Path == "" {
				return fmt.Errorf("index.path must be configured to search")
			}
			idx, err := index.Open(cfg.Index.Path)
			if err != nil {
				return err
			}
			defer idx.Close()

			hits, err := idx.Search(strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%2d. %s  %s  %s\n", h.Rank, h.Stamp, h.ID, h.Text)
			}
			return nil
		},
	}
	search.Flags().IntVarP(&k, "k", "k", index.DefaultK, "maximum number of hits")

	return search
}
