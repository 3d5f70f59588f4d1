package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	fleetservice "logistics/cmd/fleet_service"
	matchingservice "logistics/cmd/matching_service"
	"logistics/internal/cli"
)

func main() {
	// context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand(cli.Runners{
		Fleet:    fleetservice.Run,
		Matching: matchingservice.Run,
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
