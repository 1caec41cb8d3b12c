package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// echoCmd represents the echo command
var echoCmd = &cobra.Command{
	Use:   "echo <payload>",
	Short: "Round-trip a payload through the daemon",
	Long: `Send a payload to the daemon and print what comes back.

The payload is sent as text unless --hex is given, in which case it is
parsed as hex digits (whitespace ignored).`,
	Args: cobra.ExactArgs(1),
	RunE: runEcho,
}

var echoHex bool

func init() {
	echoCmd.Flags().BoolVar(&echoHex, "hex", false, "Treat the payload as hex digits")
}

func runEcho(cmd *cobra.Command, args []string) error {
	body := []byte(args[0])
	if echoHex {
		var err error
		body, err = hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
		if err != nil {
			return fmt.Errorf("invalid hex payload: %w", err)
		}
	}

	client, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	got, err := client.Echo(body)
	if err != nil {
		return err
	}

	if echoHex {
		fmt.Printf("%X\n", got)
	} else {
		fmt.Println(string(got))
	}
	return nil
}
