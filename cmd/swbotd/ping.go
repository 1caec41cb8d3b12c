package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is alive",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		token, err := client.Ping()
		if err != nil {
			return err
		}
		fmt.Println(string(token))
		return nil
	},
}
