package cmd

import (
	"github.com/spf13/cobra"

	"github.com/casegrounds/casegrounds/internal/httpapi"
)

// newServeCmd creates the HTTP API server command.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			listen := addr
			if listen == "" {
				listen = p.Config.Server.Addr
			}
			return httpapi.NewServer(p, nil).ListenAndServe(listen)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
