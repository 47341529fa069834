package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// newIngestCmd creates the document ingest command.
func newIngestCmd() *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Chunk, embed, and index documents into a case",
		Long: `Ingest one or more documents (.pdf, .docx, .txt) into a case.
Scanned PDFs are run through OCR when available. Re-ingesting a file of
the same name replaces its previous chunks.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				res, err := p.IngestDocument(cmd.Context(), caseID, filepath.Base(path), f)
				f.Close()
				if err != nil {
					return err
				}
				note := ""
				if res.OCRApplied {
					note = " (OCR applied)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s: %d chunks%s\n",
					res.FileName, res.ChunkCount, note)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case ID to ingest into (required)")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

// newDocsCmd creates the document listing command.
func newDocsCmd() *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List a case's indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			docs, err := p.Documents(caseID)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents indexed")
				return nil
			}
			for name, entry := range docs {
				note := ""
				if entry.OCRApplied {
					note = ", OCR"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d chunks%s, indexed %s)\n",
					name, entry.ChunkCount, note, entry.IndexedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case ID (required)")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}
