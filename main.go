package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RogersSccot/STI-Vision/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigFile = "stivision.json"

var (
	configFile string
	debug      bool
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "stivision",
		Short: "Camera viewer and serial relay for the STI vision rig",
		Long: `stivision receives the JPEG stream of a remote camera server,
shows it in the browser with a status overlay, and bridges serial
ports over TCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./"+defaultConfigFile+" if present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log every frame and relayed chunk")

	rootCmd.AddCommand(
		viewCmd(),
		terminateCmd(),
		relayCmd(),
		camsimCmd(),
		discoverCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	log.Println("Gracefully closing")
}

// loadConfig reads --config, or the default file when it exists, or falls
// back to built-in defaults.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return config.Load(defaultConfigFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return config.DefaultConfig(), nil
}
