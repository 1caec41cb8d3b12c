package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/swbot/pkg/config"
)

// configureLogger builds the command's logger from --log-level and the
// given verbose flag, with --log-level taking precedence. With neither
// flag set the logger sits at panic level, keeping client commands
// silent. Level parsing and logger construction are delegated to
// pkg/config so every logger in the daemon comes out of one place.
func configureLogger(cmd *cobra.Command, verboseFlagName string) (*logrus.Logger, error) {
	level := logrus.PanicLevel.String()

	if logLevelStr, _ := cmd.Flags().GetString("log-level"); logLevelStr != "" {
		level = logLevelStr
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		level = logrus.DebugLevel.String()
	}

	cfg := config.DefaultConfig()
	cfg.LogLevel = level
	return cfg.NewLogger()
}
