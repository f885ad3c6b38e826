package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/spf13/cobra"
)

func newSettingsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect persisted hub settings",
	}

	cmd.AddCommand(
		newSettingsListCmd(app),
		newSettingsGetCmd(app),
		newSettingsSetCmd(app),
	)

	return cmd
}

func newSettingsListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored flags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags, err := app.settings.Flags(cmd.Context())
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(flags))
			for key := range flags {
				keys = append(keys, key)
			}
			slices.Sort(keys)

			for _, key := range keys {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", key, flags[key])
			}
			return nil
		},
	}
}

func newSettingsGetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one stored flag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := domain.PreviewFeaturesSettingKey
			if len(args) == 1 {
				key = args[0]
			}

			value, err := app.settings.LoadBoolean(cmd.Context(), key)
			if errors.Is(err, domain.ErrSettingNotFound) {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", key)
				return err
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", key, value)
			return err
		},
	}
}

func newSettingsSetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <true|false>",
		Short: "Store one flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("parse %q as boolean: %w", args[1], err)
			}
			return app.settings.StoreBoolean(cmd.Context(), args[0], value)
		},
	}
}
