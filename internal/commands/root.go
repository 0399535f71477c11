// Package commands implements the snippetctl command tree.
package commands

import (
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every command
type rootOptions struct {
	configPath string
}

// NewRootCommand creates the snippetctl command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "snippetctl",
		Short: "Operate the snippetd spreadsheet backend",
		Long: `snippetctl manages the account token store and issues spreadsheet API calls
through the same retrying executor and token refresh flow the service uses.

Configuration comes from config.yaml, config.<env>.yaml and SNIPPETD_ environment
variables, or from the file named by --config.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")

	cmd.AddCommand(
		newSchemaCommand(opts),
		newTokenCommand(opts),
		newValuesCommand(opts),
		newAppendCommand(opts),
		newSpreadsheetsCommand(opts),
		newGetCommand(opts),
		newVersionCommand(version),
	)
	return cmd
}
