package main

import (
	"fmt"

	cachering "go-cachering"

	"github.com/spf13/cobra"
)

func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <member>",
		Short: "Show which survivors send and receive state when a member leaves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			oldRing, opts, err := cfg.buildRing()
			if err != nil {
				return err
			}

			var leaver = cachering.Member(args[0])
			newRing, err := oldRing.Without(leaver)
			if err != nil {
				return err
			}

			plan, err := cachering.PlanLeave(oldRing, newRing, cfg.NumOwners, leaver, opts...)
			if err != nil {
				return err
			}

			printPlan(plan)

			if cfg.Self != "" {
				decision, err := plan.Decision(cachering.Member(cfg.Self))
				if err != nil {
					return err
				}
				fmt.Printf("\nSelf %s: receive=%t send=%t\n", decision.Member, decision.Receive, decision.Send)
			}
			return nil
		},
	}
}

func printPlan(plan *cachering.LeavePlan) {
	fmt.Printf("Leaver %s, num_owners=%d, sender policy %s\n\n", plan.Leaver, plan.NumOwners, plan.Policy)

	fmt.Printf("Affected slots:\n")
	for _, s := range plan.Slots {
		var note string
		if s.Orphaned {
			note = "  (orphaned: no surviving replica)"
		}
		fmt.Printf("  %-12s old=%v new=%v added=%v%s\n", s.Root, s.OldOwners, s.NewOwners, s.Added, note)
	}

	fmt.Printf("\nTransfers:\n")
	var transfers = plan.Transfers()
	if len(transfers) == 0 {
		fmt.Printf("  none\n")
	}
	for _, tr := range transfers {
		fmt.Printf("  %-12s %s -> %s\n", tr.Root, tr.From, tr.To)
	}

	fmt.Printf("\nDecisions:\n")
	for _, d := range plan.Decisions() {
		fmt.Printf("  %-12s receive=%-5t send=%t\n", d.Member, d.Receive, d.Send)
	}
}
