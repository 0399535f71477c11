package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type rangeOptions struct {
	account     string
	spreadsheet string
	a1Range     string
}

func (o *rangeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.account, "account", "a", "", "Account id")
	cmd.Flags().StringVarP(&o.spreadsheet, "spreadsheet", "s", "", "Spreadsheet id")
	cmd.Flags().StringVarP(&o.a1Range, "range", "r", "", "A1 range, e.g. Sheet1!A1:C10")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("spreadsheet")
	_ = cmd.MarkFlagRequired("range")
}

func newValuesCommand(opts *rootOptions) *cobra.Command {
	o := &rangeOptions{}

	cmd := &cobra.Command{
		Use:   "values",
		Short: "Print a range of spreadsheet values as JSON",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			client, err := s.sheetsClient()
			if err != nil {
				return err
			}
			vr, err := client.GetValues(cmd.Context(), o.account, o.spreadsheet, o.a1Range)
			if err != nil {
				return err
			}
			return s.printJSON(vr)
		}),
	}
	o.bind(cmd)
	return cmd
}

func newAppendCommand(opts *rootOptions) *cobra.Command {
	o := &rangeOptions{}
	var rows []string

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append rows to a spreadsheet range",
		Example: `  # Log two hits
  snippetctl append -a acme -s 1AbC -r Hits!A:C --row /home,Mozilla,1 --row /about,Safari,1`,
		Args: cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			if len(rows) == 0 {
				return fmt.Errorf("at least one --row is required")
			}
			client, err := s.sheetsClient()
			if err != nil {
				return err
			}
			resp, err := client.AppendValues(cmd.Context(), o.account, o.spreadsheet, o.a1Range, parseRows(rows))
			if err != nil {
				return err
			}
			return s.printJSON(resp)
		}),
	}
	o.bind(cmd)
	cmd.Flags().StringArrayVar(&rows, "row", nil, "Comma separated cells of one row (repeatable)")
	return cmd
}

func parseRows(rows []string) [][]any {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells := strings.Split(row, ",")
		values := make([]any, len(cells))
		for i, c := range cells {
			values[i] = strings.TrimSpace(c)
		}
		out = append(out, values)
	}
	return out
}

func newSpreadsheetsCommand(opts *rootOptions) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "spreadsheets",
		Short: "List the spreadsheets an account can see",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			client, err := s.sheetsClient()
			if err != nil {
				return err
			}
			list, err := client.ListSpreadsheets(cmd.Context(), account)
			if err != nil {
				return err
			}
			for _, f := range list.Files {
				if _, err := fmt.Fprintf(s.out, "%s\t%s\n", f.Id, f.Name); err != nil {
					return err
				}
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
