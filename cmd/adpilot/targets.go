package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/server"
	"github.com/hrygo/adpilot/server/service/target"
)

func (a *app) newTargetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Show and edit KPI targets",
	}
	cmd.AddCommand(a.newTargetsListCommand(), a.newTargetsSetCommand(), a.newTargetsRemoveCommand())
	return cmd
}

// parseTargets reads name=value pairs such as target_cpa=4000.
func parseTargets(args []string) (target.TargetSet, error) {
	set := target.TargetSet{}
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, errors.Errorf("invalid target %q, expected name=value", arg)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", name)
		}
		set[name] = v
	}
	return set, nil
}

func formatTargets(t target.TargetSet) string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", k, strconv.FormatFloat(t[k], 'f', -1, 64)))
	}
	return strings.Join(parts, " ")
}

func (a *app) newTargetsListCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List default and campaign targets",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				defaults := c.Targets.Defaults(ctx)
				campaigns := c.Targets.Campaigns(ctx)
				if asJSON {
					return a.printJSON(target.Document{Defaults: defaults, Campaigns: campaigns})
				}

				fmt.Fprintln(a.out, "defaults:")
				for _, typ := range []string{target.TypeTraffic, target.TypeSales} {
					fmt.Fprintf(a.out, "  %s: %s\n", typ, formatTargets(defaults[typ]))
				}
				ids := make([]string, 0, len(campaigns))
				for id := range campaigns {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				if len(ids) > 0 {
					fmt.Fprintln(a.out, "campaigns:")
				}
				for _, id := range ids {
					ct := campaigns[id]
					fmt.Fprintf(a.out, "  %s (%s): %s\n", id, ct.Name, formatTargets(ct.Targets))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (a *app) newTargetsSetCommand() *cobra.Command {
	var (
		name        string
		defaultType string
	)
	cmd := &cobra.Command{
		Use:   "set [campaign_id] name=value...",
		Short: "Set campaign targets, or the defaults of a campaign type with --default",
		Example: `  adpilot targets set 120210 target_cpa=4000 --name "Spring sale"
  adpilot targets set --default traffic target_cpf=40 cpf_warning=80`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			campaignID := ""
			if defaultType == "" {
				campaignID, args = args[0], args[1:]
			}
			set, err := parseTargets(args)
			if err != nil {
				return err
			}
			if len(set) == 0 {
				return errors.New("no targets given")
			}
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				if defaultType != "" {
					if err := c.Targets.SetDefaultTargets(ctx, defaultType, set); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "defaults for %s updated: %s\n", defaultType, formatTargets(set))
					return nil
				}
				if err := c.Targets.SetCampaignTargets(ctx, campaignID, name, set); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "targets for %s updated: %s\n", campaignID, formatTargets(set))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "campaign name stored with the targets")
	cmd.Flags().StringVar(&defaultType, "default", "", "campaign type whose defaults to set (traffic or sales)")
	return cmd
}

func (a *app) newTargetsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <campaign_id>",
		Short: "Remove campaign-specific targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.withComponents(func(ctx context.Context, _ *profile.Profile, c *server.Components) error {
				removed, err := c.Targets.Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(a.out, "no targets for %s\n", args[0])
					return nil
				}
				fmt.Fprintf(a.out, "targets for %s removed\n", args[0])
				return nil
			})
		},
	}
}
