package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orvi2014/classcatch/internal/channel"
	"github.com/orvi2014/classcatch/internal/config"
	"github.com/orvi2014/classcatch/internal/gate"
)

func init() {
	checkCmd.Flags().StringVar(&daemonAddr, "addr", "http://localhost:7433", "daemon address")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Run a page-gate check against a running daemon",
	Long:  `Connects to the daemon's channel and resolves the gate for the given page URL, consuming one quota slot on a first visit.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		messenger, err := channel.DialMessenger(ctx, wsEndpoint(daemonAddr), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer messenger.Close()

		g := gate.New(messenger, args[0],
			gate.WithTimeout(cfg.GateTimeout),
			gate.WithDeniedHandler(func(msg string) {
				fmt.Printf("%s\n%s\n", gate.UpsellTitle, msg)
			}),
		)

		switch g.Allow(ctx) {
		case gate.Allowed:
			fmt.Printf("Granted: %s\n", g.PageKey())
		case gate.Denied:
			fmt.Printf("Blocked: %s\n", g.PageKey())
			os.Exit(1)
		case gate.Pending:
			fmt.Println("Check already in flight")
		}
	},
}

// wsEndpoint turns the daemon's HTTP address into its channel endpoint.
func wsEndpoint(addr string) string {
	switch {
	case strings.HasPrefix(addr, "https://"):
		addr = "wss://" + strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		addr = "ws://" + strings.TrimPrefix(addr, "http://")
	}
	return strings.TrimRight(addr, "/") + "/ws"
}
