package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/server"
)

func (a *app) newLearnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Analyze and summarize the effects of executed actions",
	}
	cmd.AddCommand(a.newLearnAnalyzeCommand(), a.newLearnSummaryCommand())
	return cmd
}

func (a *app) newLearnAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Analyze every pending learning whose delay has elapsed",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				analyzed, err := c.Learner.AnalyzePending(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "analyzed %d learnings\n", len(analyzed))
				for _, r := range analyzed {
					fmt.Fprintf(a.out, "  %s %s %s: %s\n", r.Effect.Icon(), r.Action.Type, r.CampaignID, r.EffectDetail)
				}
				return nil
			})
		},
	}
}

func (a *app) newLearnSummaryCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show success rates per action type",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				if asJSON {
					return a.printJSON(c.Learner.Summary(ctx))
				}
				s := c.Learner.Summary(ctx)
				fmt.Fprintf(a.out, "learnings: %d (pending analysis: %d)\n", s.TotalLearnings, s.PendingAnalysis)
				fmt.Fprintln(a.out, c.Learner.Context(ctx))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
