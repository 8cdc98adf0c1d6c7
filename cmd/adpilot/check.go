package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/server"
	"github.com/hrygo/adpilot/server/service/monitor"
)

func (a *app) newCheckCommand() *cobra.Command {
	var (
		asJSON     bool
		withNotify bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one monitoring pass and print the report",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.withComponents(func(ctx context.Context, p *profile.Profile, c *server.Components) error {
				var (
					res *monitor.RunResult
					err error
				)
				if withNotify {
					res, err = c.Scheduler.RunNow(ctx)
				} else {
					res, err = c.Monitor.Run(ctx, monitor.TriggerManual)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return a.printJSON(res)
				}
				fmt.Fprint(a.out, monitor.Markdown(res, p.Location()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run result as JSON")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "send high-severity alerts to the notification channel")
	return cmd
}
