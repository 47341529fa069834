package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCasesCmd creates the case management command group.
func newCasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Manage case folders",
	}
	cmd.AddCommand(newCasesCreateCmd())
	cmd.AddCommand(newCasesListCmd())
	cmd.AddCommand(newCasesDeleteCmd())
	return cmd
}

func newCasesCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <case-id>",
		Short: "Create a new case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.CreateCase(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created case %s\n", args[0])
			return nil
		},
	}
}

func newCasesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			cases, err := p.ListCases()
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cases found")
				return nil
			}
			for _, id := range cases {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newCasesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Delete a case and all its indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProviders()
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.DeleteCase(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted case %s\n", args[0])
			return nil
		},
	}
}
