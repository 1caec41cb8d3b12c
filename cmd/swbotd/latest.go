package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// latestCmd represents the latest command
var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recently completed sensor reading",
	Long: `Show the most recently completed reading, or the reading for
one device when --id is given.

"Latest" means most recently completed: a sensor that keeps repeating
an already-merged reading does not displace one that just finished
merging.`,
	RunE: runLatest,
}

var latestID string

func init() {
	latestCmd.Flags().StringVar(&latestID, "id", "", "Device id to query (e.g. 0x1234 or 4660)")
}

func runLatest(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if latestID == "" {
		snap, err := client.Latest()
		if err != nil {
			return err
		}
		printSnapshot(snap)
		return nil
	}

	id, err := strconv.ParseUint(latestID, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid device id %q: %w", latestID, err)
	}

	snap, err := client.LatestFor(uint16(id))
	if err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}
