package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/swbot/internal/registry"
	"github.com/srg/swbot/internal/transport"
	"golang.org/x/term"
)

const dialTimeout = 3 * time.Second

// dialDaemon connects a client command to the daemon named by --addr.
// Color output is disabled when stdout is not a terminal.
func dialDaemon(cmd *cobra.Command) (*transport.Client, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	addr, _ := cmd.Flags().GetString("addr")
	client, err := transport.Dial(addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon at %s: %w", addr, err)
	}

	// Arguments are fine once we are connected - runtime errors should
	// not print usage.
	cmd.SilenceUsage = true
	return client, nil
}

// printSnapshot renders one reading in a fixed, greppable layout.
func printSnapshot(snap registry.Snapshot) {
	label := color.New(color.FgCyan).SprintFunc()
	value := color.New(color.FgGreen).SprintFunc()

	fmt.Printf("%s  %s\n", label("address:"), value(fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		snap.Addr[0], snap.Addr[1], snap.Addr[2], snap.Addr[3], snap.Addr[4], snap.Addr[5])))
	fmt.Printf("%s     %s dBm\n", label("rssi:"), value(fmt.Sprintf("%d", snap.RSSI)))
	if snap.HasDeviceID {
		fmt.Printf("%s       %s\n", label("id:"), value(fmt.Sprintf("0x%04X", snap.DeviceID)))
	}
	fmt.Printf("%s  %s\n", label("service:"), value(fmt.Sprintf("%X", snap.Service)))
	fmt.Printf("%s      %s\n", label("mfg:"), value(fmt.Sprintf("%X", snap.Manufacturer)))
}
