package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/fieldsync/internal/client"
	"github.com/muurk/fieldsync/internal/discovery"
	"github.com/muurk/fieldsync/internal/ui"
)

// Command flags
var (
	serverURL   string
	useDiscover bool
	nickname    string
	scanTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(discoverCmd)
}

// joinCmd opens the interactive client
var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a server in the terminal UI",
	Long: `Connect to a fieldsync server and open the interactive terminal UI.

Give the server with --url, or use --discover to connect to the first server
advertising itself on the local network. Without --nick the server assigns a
nickname.`,
	Example: `  # Join a known server
  fieldsync-client join --url ws://localhost:8080/ws --nick ann

  # Join the first server found over mDNS
  fieldsync-client join --discover`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&serverURL, "url", "", "Server WebSocket URL (ws:// or wss://)")
	joinCmd.Flags().BoolVar(&useDiscover, "discover", false, "Find the server over mDNS")
	joinCmd.Flags().StringVar(&nickname, "nick", "", "Nickname to join with")
	joinCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to search when using --discover")
	joinCmd.MarkFlagsMutuallyExclusive("url", "discover")
	joinCmd.MarkFlagsOneRequired("url", "discover")
}

func runJoin(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return errors.New("join needs an interactive terminal")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	target := serverURL
	if useDiscover {
		scanner := discovery.NewScanner()
		scanner.Timeout = scanTimeout

		fmt.Printf("Searching for servers (timeout: %s)...\n", scanTimeout)
		svc, err := scanner.FindFirst(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Found %s\n", svc)
		target = svc.URL()
	}

	c, err := client.Dial(ctx, target, client.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(nickname); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	final, err := ui.Run(c, c.Messages(), target)
	if err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	if final.Disconnected {
		if err := c.Err(); err != nil {
			return fmt.Errorf("disconnected: %w", err)
		}
		fmt.Println("Server closed the connection.")
	}
	return nil
}

// discoverCmd lists servers on the local network
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List servers on the local network",
	Long: `List fieldsync servers advertising themselves over mDNS/DNS-SD.

Servers are only visible when started with --advertise.`,
	Example: `  # Search for 3 seconds (default)
  fieldsync-client discover

  # Longer search on busy networks
  fieldsync-client discover --timeout 10s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to search")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	printer := ui.NewPrinter(os.Stdout)
	printer.PrintHeader("Discover", "fieldsync-client discover",
		ui.Param{Key: "Service", Value: discovery.ServiceType},
		ui.Param{Key: "Timeout", Value: scanTimeout.String()},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	services, err := discovery.Scan(ctx, scanTimeout)
	if err != nil {
		printer.PrintError("Scan failed", err)
		return err
	}

	printer.PrintServices(services)
	return nil
}
