package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync items with the server",
	Long: `Push changes made on this device to the server and pull changes made on
other devices. Changes that cannot be pushed stay pending and are retried on
the next sync.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := current.requireUser(); err != nil {
			return err
		}
		// The sync started at sign-in runs first; this one retries whatever it
		// could not push.
		current.waitInitialSync(cmd.Context())

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := current.engine.SyncWithRemote(ctx); err != nil {
			color.Yellow("Sync failed: %v", err)
		}

		stats := current.engine.Stats()
		if stats.Pending > 0 {
			color.Yellow("%d of %d items are still pending", stats.Pending, stats.Total)
			return nil
		}
		color.Green("All %d items are synced", stats.Total)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account and sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		faint := color.New(color.Faint).SprintFunc()

		fmt.Printf("Server:   %s\n", cfg.Server)
		fmt.Printf("Database: %s\n", faint(cfg.DBPath()))

		id := current.sessions.Current()
		if id == nil {
			color.Yellow("Not signed in")
			return nil
		}
		fmt.Printf("Account:  %s\n", id.Email)

		online := current.waitInitialSync(cmd.Context())
		stats := current.engine.Stats()
		fmt.Printf("Items:    %d (%d pending)\n", stats.Total, stats.Pending)
		if online {
			color.Green("Online")
		} else {
			color.Yellow("Offline")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusCmd)
}
