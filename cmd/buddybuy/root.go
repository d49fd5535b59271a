package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/buddybuy/internal/config"
)

var (
	v       = config.New()
	cfg     *config.Config
	current *app
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "buddybuy",
	Short: "Keep track of things you bought and how you liked them",
	Long: `BuddyBuy keeps a list of purchases with a title, a description, a
rating and an optional photo.

Every change is saved on this device first and synced with the server in
the background, so the list works offline. Run 'buddybuy sync' to push
pending changes once you are back online.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}
		current, err = openApp(cmd.Context(), cfg)
		return err
	},
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		if cerr := current.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", config.DefaultServer, "BuddyBuy server URL")
	flags.String("data-dir", "", "directory of the device database (default: ~/.local/share/buddybuy)")
	flags.String("log-file", "", "write logs to this file (default: <data-dir>/buddybuy.log)")
	flags.BoolP("verbose", "v", false, "also print logs to stderr")
	flags.DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the server")

	// Explicitly set flags override the config file and the environment.
	for key, name := range map[string]string{
		config.KeyServer:  "server",
		config.KeyDataDir: "data-dir",
		config.KeyLogFile: "log-file",
		config.KeyVerbose: "verbose",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding --%s: %v", name, err))
		}
	}
}
