package commands

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easeware/snippetd/executor"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/sheets"
)

func newGetCommand(opts *rootOptions) *cobra.Command {
	var account, url string
	var headers []string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Send an authorised GET through the retrying executor",
		Example: `  snippetctl get -a acme -u https://sheets.googleapis.com/v4/spreadsheets/1AbC -H Accept=application/json`,
		Args: cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			client, err := s.sheetsClient()
			if err != nil {
				return err
			}

			ctx := logger.WithOutboundCounter(cmd.Context())
			res, err := client.Do(ctx, account, func(token string) *executor.Descriptor {
				d := executor.NewDescriptor(http.MethodGet, url, token)
				for _, h := range headers {
					if name, value, ok := cutHeader(h); ok {
						d.Headers.Set(name, value)
					}
				}
				return d
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "status=%d attempts=%d outbound=%d elapsed=%s\n",
				res.StatusCode, res.Attempts, logger.GetOutboundCounter(ctx), res.Elapsed)
			if _, err := s.out.Write(res.Body); err != nil {
				return err
			}
			return sheets.CheckResult(res)
		}),
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Account id")
	cmd.Flags().StringVarP(&url, "url", "u", "", "Absolute URL")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra header as Name=Value (repeatable)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// cutHeader splits "Name=Value" or "Name: Value".
func cutHeader(h string) (name, value string, ok bool) {
	i := strings.IndexAny(h, "=:")
	if i < 0 {
		return strings.TrimSpace(h), "", false
	}
	return strings.TrimSpace(h[:i]), strings.TrimSpace(h[i+1:]), true
}
