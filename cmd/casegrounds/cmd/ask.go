package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casegrounds/casegrounds/internal/cite"
	"github.com/casegrounds/casegrounds/internal/search"
)

// newAskCmd creates the question answering command.
func newAskCmd() *cobra.Command {
	var caseID string
	var noLegal bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question grounded in a case's evidence",
		Long: `Ask answers a question using the case's documents and, for legal
questions, snapshots of whitelisted legal web sources. Every citation in
the answer is validated against the underlying text; answers whose
citations could not be verified carry a warning.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			question := strings.Join(args, " ")
			resp, err := p.Ask(cmd.Context(), caseID, question, !noLegal)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Answer)

			if len(resp.Citations) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for _, c := range resp.Citations {
					if c.Type == cite.SourceLegal {
						fmt.Fprintf(out, "  - %s\n", c.URL)
					} else if c.Page > 0 {
						fmt.Fprintf(out, "  - %s, page %d\n", c.FileName, c.Page)
					} else {
						fmt.Fprintf(out, "  - %s\n", c.FileName)
					}
				}
			}
			if !resp.CitationsValid {
				fmt.Fprintln(out, "\nUnverified citations:")
				for _, e := range resp.ValidationErrors {
					fmt.Fprintf(out, "  - %s\n", e)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case ID to ask against (required)")
	cmd.Flags().BoolVar(&noLegal, "no-legal", false, "Skip legal web source retrieval")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

// newSearchCmd creates the raw retrieval command.
func newSearchCmd() *cobra.Command {
	var caseID string
	var topK int
	var mode string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a case's documents without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			results, err := p.Retriever.Search(cmd.Context(), caseID, strings.Join(args, " "),
				searchOptionsFor(topK, mode))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No results")
				return nil
			}
			for i, r := range results {
				locator := fmt.Sprintf("para %d", r.Chunk.Paragraph)
				if r.Chunk.Page > 0 {
					locator = fmt.Sprintf("page %d", r.Chunk.Page)
				}
				fmt.Fprintf(out, "%2d. [%.3f] %s (%s)\n", i+1, r.Score, r.Chunk.FileName, locator)
				fmt.Fprintf(out, "    %s\n", preview(r.Chunk.Text, 160))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case ID to search (required)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "Retrieval mode: hybrid, keyword, or vector")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func searchOptionsFor(topK int, mode string) search.Options {
	return search.Options{TopK: topK, Mode: search.Mode(mode)}
}

func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
