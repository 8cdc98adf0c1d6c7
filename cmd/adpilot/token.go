package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apiv1 "github.com/hrygo/adpilot/server/router/api/v1"
)

func (a *app) newTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator API token signed with the API secret",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := a.loadProfile()
			if err != nil {
				return err
			}
			token, err := apiv1.IssueToken(p.APISecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "operator name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", apiv1.DefaultTokenTTL, "token lifetime")
	return cmd
}
