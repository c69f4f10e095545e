package main

import (
	"fmt"
	"log/slog"
	"os"

	cachering "go-cachering"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	memberList   []string
	numOwners    int
	hashName     string
	senderPolicy string
	selfID       string
	verbose      bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "ringnode",
		Short: "Inspect replica placement and rebalancing of a cache cluster",
		Long: `Ringnode is a demonstration of the go-cachering library.
It places cluster members on a consistent hashing ring, shows which members
own each key, and works out which survivors must send or receive state when
a member leaves.`,
		SilenceUsage: true,
	}

	var flags = rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Cluster YAML file")
	flags.StringSliceVar(&memberList, "members", nil, "Comma separated cluster members")
	flags.IntVar(&numOwners, "num-owners", 2, "Number of owners per key")
	flags.StringVar(&hashName, "hash", "md5", "Hash function: md5 or xxhash")
	flags.StringVar(&senderPolicy, "sender-policy", cachering.SenderPrimaryOwner.String(), "Sender policy: primary-owner or added-owner-predecessor")
	flags.StringVar(&selfID, "self", "", "Identity of this node")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newOwnersCmd(),
		newLeaveCmd(),
		newExploreCmd(),
		newStoreCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes to stderr so output on stdout stays clean.
func newLogger() *slog.Logger {
	var level = slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
