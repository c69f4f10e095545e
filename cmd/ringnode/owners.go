package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newOwnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owners [keys...]",
		Short: "Print the ring, or the owners of the given keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ring, _, err := cfg.buildRing()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				fmt.Print(ring.String())
				fmt.Printf("\nOwned roots (num_owners=%d):\n", cfg.NumOwners)
				for _, m := range ring.Members() {
					roots, err := ring.OwnedRoots(m, cfg.NumOwners)
					if err != nil {
						return err
					}
					fmt.Printf("  %-20s %v\n", m, roots)
				}
				return nil
			}

			for _, key := range args {
				owners, err := ring.OwnersOfKey(key, cfg.NumOwners)
				if err != nil {
					return err
				}
				var names = make([]string, len(owners))
				for i, o := range owners {
					names[i] = string(o)
				}
				fmt.Printf("%-20s primary=%s owners=[%s]\n", key, owners[0], strings.Join(names, ", "))
			}
			return nil
		},
	}
}
