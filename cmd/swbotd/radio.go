package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start (or restart) radio discovery on the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		if err := client.Start(); err != nil {
			return err
		}
		fmt.Println("discovery running")
		return nil
	},
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Cancel radio discovery on the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		if err := client.Stop(); err != nil {
			return err
		}
		fmt.Println("discovery cancelled")
		return nil
	},
}
