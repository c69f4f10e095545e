package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	cachering "go-cachering"

	"github.com/eiannone/keyboard"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newExploreCmd() *cobra.Command {
	var metricsAddr string

	var cmd = &cobra.Command{
		Use:   "explore",
		Short: "Interactively add and remove members and watch the rebalance decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplore(cmd, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	return cmd
}

func runExplore(cmd *cobra.Command, metricsAddr string) error {
	var ctx = context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := cfg.ringOptions()
	if err != nil {
		return err
	}

	var self = cachering.Member(cfg.Self)
	if self == "" {
		self = newMemberID()
	}

	var lastEvent string
	tracker, err := cachering.NewTracker(self, cfg.NumOwners, append(opts,
		cachering.WithLogger(newLogger()),
		cachering.WithTransferHandler(cachering.TransferHandlerFunc(func(ctx context.Context, ev cachering.LeaveEvent) error {
			lastEvent = describeLeave(ev)
			return nil
		})),
	)...)
	if err != nil {
		return err
	}

	var members = append(cfg.members(), self)
	if err := tracker.SetView(ctx, members); err != nil {
		return fmt.Errorf("failed to install initial view: %w", err)
	}

	if metricsAddr != "" {
		var reg = prometheus.NewRegistry()
		reg.MustRegister(tracker)

		var srv = &http.Server{
			Addr:    metricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server failed: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	printExplore(tracker, self, lastEvent)

	// Set up signal handling
	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Initialize keyboard
	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	// Keyboard input channel
	var keyCh = make(chan rune)
	go func() {
		for {
			char, _, err := keyboard.GetKey()
			if err != nil {
				return
			}
			keyCh <- char
		}
	}()

	// Main loop
	for {
		select {
		case key := <-keyCh:
			switch key {
			case 'j', 'J':
				var next = append(slices.Clone(tracker.Ring().Members()), newMemberID())
				if err := tracker.SetView(ctx, next); err != nil {
					lastEvent = fmt.Sprintf("join failed: %v", err)
				} else {
					lastEvent = fmt.Sprintf("%s joined", next[len(next)-1])
				}
			case 'l', 'L':
				var leaver, ok = pickLeaver(tracker.Ring(), self)
				if !ok {
					lastEvent = "no other member left to remove"
					break
				}
				if err := tracker.Leave(ctx, leaver); err != nil {
					lastEvent = fmt.Sprintf("leave failed: %v", err)
				}
			case 'q', 'Q':
				fmt.Printf("\n\nShutting down...\n")
				return nil
			}
			printExplore(tracker, self, lastEvent)
		case sig := <-sigCh:
			fmt.Printf("\n\nReceived signal %v, shutting down...\n", sig)
			return nil
		}
	}
}

func newMemberID() cachering.Member {
	return cachering.Member("node-" + uuid.New().String()[0:8])
}

// pickLeaver returns a random member other than self.
func pickLeaver(ring *cachering.Ring, self cachering.Member) (cachering.Member, bool) {
	var candidates []cachering.Member
	for _, m := range ring.Members() {
		if m != self {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

func describeLeave(ev cachering.LeaveEvent) string {
	var s = fmt.Sprintf("%s left: %d slots affected, receivers %v, senders %v\n",
		ev.Leaver, len(ev.Plan.Slots), ev.Plan.ReceiveSet(), ev.Plan.SendSet())
	for _, tr := range ev.Plan.Transfers() {
		s += fmt.Sprintf("  %s: %s -> %s\n", tr.Root, tr.From, tr.To)
	}
	return s + fmt.Sprintf("this node: receive=%t send=%t", ev.Decision.Receive, ev.Decision.Send)
}

func printExplore(tracker *cachering.Tracker, self cachering.Member, lastEvent string) {
	fmt.Print("\033[2J\033[H") // Clear screen and move cursor to top
	fmt.Printf("Self: %s\n", self)
	fmt.Println(tracker.Ring().String())

	if lastEvent != "" {
		fmt.Printf("Last change: %s\n", lastEvent)
	}

	fmt.Printf("\nControls:\n")
	fmt.Printf("  [j] Join a new member\n")
	fmt.Printf("  [l] Remove a random member\n")
	fmt.Printf("  [q] Quit\n")
}
