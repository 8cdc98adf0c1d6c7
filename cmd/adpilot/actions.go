package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/server"
	"github.com/hrygo/adpilot/server/service/action"
)

func (a *app) newActionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List, approve and reject queued actions",
	}
	cmd.AddCommand(a.newActionsListCommand(), a.newActionsApproveCommand(), a.newActionsRejectCommand())
	return cmd
}

func (a *app) newActionsListCommand() *cobra.Command {
	var (
		history bool
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending actions, or the history with --history",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				var records []action.Record
				if history {
					records = c.Executor.Queue().History(ctx, limit)
				} else {
					records = c.Executor.Pending(ctx)
				}
				if asJSON {
					if records == nil {
						records = []action.Record{}
					}
					return a.printJSON(records)
				}
				a.printRecords(records)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "show resolved actions instead of pending ones")
	cmd.Flags().IntVar(&limit, "limit", action.DefaultHistoryLimit, "number of history entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (a *app) printRecords(records []action.Record) {
	if len(records) == 0 {
		fmt.Fprintln(a.out, "no actions")
		return
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tCAMPAIGN\tCREATED\tREASON")
	for _, r := range records {
		name := r.Action.CampaignName
		if name == "" {
			name = r.Action.CampaignID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Action.Type, name, r.CreatedAt.Format("2006-01-02 15:04"), r.Action.Reason)
	}
	w.Flush()
}

func (a *app) printResult(id string, res action.Result) {
	switch {
	case res.Refused():
		fmt.Fprintf(a.out, "%s refused: %s\n", id, res.Refusal)
	case !res.Success:
		fmt.Fprintf(a.out, "%s failed: %s\n", id, res.Error)
	default:
		fmt.Fprintf(a.out, "%s %s\n", id, res.Message)
	}
}

func (a *app) newActionsApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending action and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				res, err := c.Executor.ApproveAndExecute(ctx, args[0])
				if err != nil {
					return err
				}
				a.printResult(args[0], res)
				return nil
			})
		},
	}
}

func (a *app) newActionsRejectCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				rec, err := c.Executor.Reject(ctx, args[0], reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s rejected\n", rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the rejection")
	return cmd
}
