package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/RogersSccot/STI-Vision/discovery"
	"github.com/RogersSccot/STI-Vision/metrics"
	"github.com/RogersSccot/STI-Vision/relay"
)

func relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Bridge a serial port over TCP",
	}
	cmd.AddCommand(relayListenCmd(), relayDialCmd(), relayPortsCmd())
	return cmd
}

func relayListenCmd() *cobra.Command {
	var (
		addr      string
		device    string
		baud      int
		advertise bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Serve a local serial port to one TCP client at a time",
		Long: `Open the serial port and accept TCP clients on the listen address.
Bytes flow both ways until the client disconnects; the port stays
open for the next client.

Examples:
  stivision relay listen
  stivision relay listen --addr 0.0.0.0:2000 --serial /dev/ttyUSB0 --baud 115200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Relay.ListenAddr
			}
			if device == "" {
				device = cfg.Relay.ListenSerial
			}
			if baud <= 0 {
				baud = cfg.Relay.ListenBaud
			}

			port, err := relay.OpenSerial(device, baud)
			if err != nil {
				return err
			}
			defer port.Close()

			if advertise || cfg.Relay.Advertise {
				if ad, err := advertiseAddr("stivision-relay", discovery.ServiceRelay, addr); err == nil {
					defer ad.Shutdown()
				} else {
					fmt.Fprintf(os.Stderr, "advertise: %v\n", err)
				}
			}

			m := metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))
			return relay.Listen(cmd.Context(), addr, port, relay.WithMetrics(m), relay.WithVerbose(debug))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "TCP listen address (default from config)")
	cmd.Flags().StringVar(&device, "serial", "", "Serial device (default from config)")
	cmd.Flags().IntVar(&baud, "baud", 0, "Baud rate (default from config)")
	cmd.Flags().BoolVar(&advertise, "advertise", false, "Advertise the relay over mDNS")

	return cmd
}

func relayDialCmd() *cobra.Command {
	var (
		addr   string
		device string
		baud   int
	)

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect a local serial port to a remote TCP server",
		Long: `Connect to the remote address and forward bytes between it and the
serial port until the remote side closes the connection.

Examples:
  stivision relay dial
  stivision relay dial --addr orangepizero3.lan:2001 --serial COM2 --baud 500000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Relay.DialAddr
			}
			if device == "" {
				device = cfg.Relay.DialSerial
			}
			if baud <= 0 {
				baud = cfg.Relay.DialBaud
			}

			port, err := relay.OpenSerial(device, baud)
			if err != nil {
				return err
			}
			defer port.Close()

			return relay.Dial(cmd.Context(), addr, port, relay.WithVerbose(debug))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Remote TCP address (default from config)")
	cmd.Flags().StringVar(&device, "serial", "", "Serial device (default from config)")
	cmd.Flags().IntVar(&baud, "baud", 0, "Baud rate (default from config)")

	return cmd
}

func relayPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := relay.SerialPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("no serial ports found")
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}

// advertiseAddr registers instance on the port part of a listen address.
func advertiseAddr(instance, service, addr string) (*discovery.Advertisement, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	if host, err := os.Hostname(); err == nil {
		instance = instance + "-" + host
	}
	return discovery.Register(instance, service, port, "version="+version)
}
