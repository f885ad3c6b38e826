package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "azh",
		Short:         "Azad hub (azh): coordinate the order-history extension's scrapers",
		Long:          "azh runs the local coordination hub for the Azad order-history extension: it routes commands from the control page to content scrapers, aggregates advertised periods, checks premium entitlements and answers allowed external extensions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(app),
		newStatusCmd(app),
		newSettingsCmd(app),
		newCredentialsCmd(app),
		newResolveCmd(),
	)

	return rootCmd
}
