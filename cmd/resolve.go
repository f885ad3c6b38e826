package cmd

import (
	"fmt"

	"github.com/bnema/azad-hub/internal/application"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <link>",
		Short: "Print the order identifier a context-menu link resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, ok := application.ContextMenuResolver{}.Resolve(args[0])
			if !ok {
				return fmt.Errorf("no order identifier in %q", args[0])
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), orderID)
			return err
		},
	}
}
