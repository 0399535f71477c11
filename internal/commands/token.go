package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/easeware/snippetd/tokenstore"
)

type tokenSetOptions struct {
	account string
	access  string
	refresh string
	expires time.Duration
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage stored account tokens",
	}
	cmd.AddCommand(newTokenSetCommand(opts), newTokenShowCommand(opts), newTokenDeleteCommand(opts))
	return cmd
}

func newTokenSetCommand(opts *rootOptions) *cobra.Command {
	o := &tokenSetOptions{}

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a token for an account",
		Example: `  # Seed a refresh token; the access token is fetched on first use
  snippetctl token set --account acme --refresh 1//0g...

  # Store a known access token valid for the next hour
  snippetctl token set --account acme --access ya29... --refresh 1//0g... --expires 1h`,
		Args: cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			if o.access == "" && o.refresh == "" {
				return errors.New("one of --access or --refresh is required")
			}
			tokens, err := s.openTokens()
			if err != nil {
				return err
			}

			rec := tokenstore.Record{AccessToken: o.access, RefreshToken: o.refresh}
			if o.expires > 0 {
				rec.ExpireTime = time.Now().Add(o.expires).UTC()
			}
			if err := tokens.store.Write(cmd.Context(), o.account, rec); err != nil {
				return err
			}
			_, err = fmt.Fprintf(s.out, "stored token for %s\n", o.account)
			return err
		}),
	}

	cmd.Flags().StringVarP(&o.account, "account", "a", "", "Account id")
	cmd.Flags().StringVar(&o.access, "access", "", "Access token")
	cmd.Flags().StringVar(&o.refresh, "refresh", "", "Refresh token")
	cmd.Flags().DurationVar(&o.expires, "expires", 0, "Access token lifetime from now (0 = unknown)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

// tokenStatus is the printable view of a record; token values are never shown.
type tokenStatus struct {
	Account         string     `json:"account"`
	HasAccessToken  bool       `json:"has_access_token"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	ExpireTime      *time.Time `json:"expire_time,omitempty"`
	Expired         bool       `json:"expired"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

func newTokenShowCommand(opts *rootOptions) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show whether an account has a usable token",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			tokens, err := s.openTokens()
			if err != nil {
				return err
			}
			rec, err := tokens.store.Read(cmd.Context(), account)
			if err != nil {
				return err
			}

			status := tokenStatus{
				Account:         account,
				HasAccessToken:  rec.AccessToken != "",
				HasRefreshToken: rec.CanRefresh(),
				Expired:         rec.Expired(time.Now(), s.cfg.OAuth.Token.Skew),
			}
			if !rec.ExpireTime.IsZero() {
				status.ExpireTime = &rec.ExpireTime
			}
			if !rec.UpdatedAt.IsZero() {
				status.UpdatedAt = &rec.UpdatedAt
			}
			return s.printJSON(status)
		}),
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newTokenDeleteCommand(opts *rootOptions) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an account's token",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(cmd *cobra.Command, s *session) error {
			tokens, err := s.openTokens()
			if err != nil {
				return err
			}
			if err := tokens.store.Delete(cmd.Context(), account); err != nil {
				return err
			}
			_, err = fmt.Fprintf(s.out, "deleted token for %s\n", account)
			return err
		}),
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
