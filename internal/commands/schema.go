package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the token table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			tokens, err := s.openTokens()
			if err != nil {
				return err
			}
			if err := tokens.ensureSchema(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(s.out, "token table %s ready\n", tokens.table)
			return err
		}),
	}
}
