package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/RogersSccot/STI-Vision/camsim"
	"github.com/RogersSccot/STI-Vision/config"
	"github.com/RogersSccot/STI-Vision/discovery"
)

func camsimCmd() *cobra.Command {
	var (
		addr      string
		label     string
		advertise bool
	)

	cmd := &cobra.Command{
		Use:   "camsim",
		Short: "Run a simulated camera server",
		Long: `Serve a synthetic test pattern using the camera wire protocol, for
trying the viewer without hardware. A viewer that sends the terminate
flag shuts the simulator down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if advertise {
				if ad, err := advertiseAddr("stivision-camsim", discovery.ServiceCamera, addr); err == nil {
					defer ad.Shutdown()
				} else {
					fmt.Fprintf(os.Stderr, "advertise: %v\n", err)
				}
			}
			srv := camsim.New(camsim.PatternSource{Label: label})
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", camsim.DefaultAddr, "Listen address")
	cmd.Flags().StringVar(&label, "label", "STI-Vision camsim", "Text drawn on every frame")
	cmd.Flags().BoolVar(&advertise, "advertise", false, "Advertise the simulator over mDNS")

	return cmd
}

func discoverCmd() *cobra.Command {
	var (
		service string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List camera servers advertised on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := discovery.Browse(cmd.Context(), service, timeout)
			if err != nil {
				return err
			}
			if len(services) == 0 {
				fmt.Println("nothing found")
				return nil
			}
			for _, s := range services {
				fmt.Printf("%-24s %-22s %s\n", s.Instance, s.Endpoint(), s.HostName)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", discovery.ServiceCamera, "mDNS service type")
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultBrowseTimeout, "How long to listen for answers")

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := defaultConfigFile
			if len(args) == 1 {
				filename = args[0]
			}
			if _, err := os.Stat(filename); err == nil {
				return fmt.Errorf("%s already exists", filename)
			}
			if err := config.Save(config.DefaultConfig(), filename); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", filename)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("  Version:    %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Built:      %s\n", date)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
