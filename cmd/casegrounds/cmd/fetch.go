package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newFetchCmd creates the legal source fetch command.
func newFetchCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Snapshot a whitelisted legal web page",
		Long: `Fetch downloads a page from a whitelisted legal domain, extracts its
text, and stores a content-addressed snapshot in the legal cache. A
cached page is served without a network request unless --refresh is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			snap, err := p.FetchLegal(cmd.Context(), args[0], refresh)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snapshot %s\n", snap.ID)
			fmt.Fprintf(out, "  URL:     %s\n", snap.URL)
			fmt.Fprintf(out, "  Title:   %s\n", snap.Title)
			fmt.Fprintf(out, "  Fetched: %s\n", snap.FetchedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Excerpt: %s\n", snap.Excerpt())
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch even when a cached snapshot exists")
	return cmd
}
