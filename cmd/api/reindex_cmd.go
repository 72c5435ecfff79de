package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the Meilisearch indexes from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			if strings.TrimSpace(e.cfg.MeiliURL) == "" {
				return fmt.Errorf("reindex: MEILI_URL is not set")
			}

			searchService, closeSearch := e.searchService()
			defer closeSearch()
			count, err := searchService.ReindexAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records\n", count)
			return nil
		},
	}
}
