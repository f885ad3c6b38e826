package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCredentialsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the billing API key",
	}

	cmd.AddCommand(
		newCredentialsSetCmd(app),
		newCredentialsRemoveCmd(app),
	)

	return cmd
}

func newCredentialsSetCmd(app *app) *cobra.Command {
	var (
		key   string
		value string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the billing API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = app.cfg.GetString(keyBillingKeyRef)
			}
			if err := app.credentials.Put(cmd.Context(), key, value); err != nil {
				return fmt.Errorf("store credential %q: %w", key, err)
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
			return err
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Credential reference (defaults to billing.api_key_ref)")
	cmd.Flags().StringVar(&value, "value", "", "Credential value")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newCredentialsRemoveCmd(app *app) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the billing API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = app.cfg.GetString(keyBillingKeyRef)
			}
			if err := app.credentials.Delete(cmd.Context(), key); err != nil {
				return fmt.Errorf("remove credential %q: %w", key, err)
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
			return err
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Credential reference (defaults to billing.api_key_ref)")

	return cmd
}
