package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/swbot/internal/dispatch"
	"github.com/srg/swbot/internal/protocol"
	"github.com/srg/swbot/internal/radio"
	"github.com/srg/swbot/internal/registry"
	"github.com/srg/swbot/internal/transport"
	"github.com/srg/swbot/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the advertisement cache daemon",
	Long: `Run the daemon: scan for sensor advertisements, merge split
readings per device, and answer protocol queries over TCP.

Scanning does not begin until a RADIO_START command arrives (or
--auto-start is given); queries before that return a NotStarted error.`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveListenAddr string
	serveAutoStart  bool
	serveVerbose    bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to YAML config file")
	serveCmd.Flags().StringVarP(&serveListenAddr, "listen", "l", "", "Listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveAutoStart, "auto-start", false, "Start radio discovery at boot")
	serveCmd.Flags().BoolVar(&serveVerbose, "verbose", false, "Enable debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}

	logger, err := configureServeLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	reg := registry.New(cfg.CompanyID, logger)
	rad := radio.New(reg, cfg.ServiceUUID, cfg.AllowDuplicates, logger)
	disp := dispatch.New(reg, rad, logger)
	server := transport.NewServer(disp, logger)

	// Surface merge transitions as log lines; the ring drops events if
	// logging falls behind, it never stalls ingestion.
	go func() {
		for ev := range reg.Events() {
			fields := logrus.Fields{
				"addr": fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
					ev.Addr[0], ev.Addr[1], ev.Addr[2], ev.Addr[3], ev.Addr[4], ev.Addr[5]),
				"rssi": ev.RSSI,
			}
			if ev.HasDeviceID {
				fields["device_id"] = fmt.Sprintf("0x%04X", ev.DeviceID)
			}
			logger.WithFields(fields).Info("reading completed")
		}
	}()

	if serveAutoStart {
		reply := disp.Handle([]byte{protocol.OpRadioStart})
		if len(reply) > 0 && reply[0] != protocol.StatusOK {
			return fmt.Errorf("auto-start failed: %s", FormatUserError(dispatch.ErrRadioInitFailed))
		}
		logger.Info("radio discovery auto-started")
	}

	if err := server.Listen(cfg.ListenAddr); err != nil {
		return err
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.Serve() }()

	// Listen for Ctrl+C / SIGTERM to shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serveErrCh:
		if err != nil {
			return err
		}
	}

	if err := server.Shutdown(); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	return rad.Stop()
}

// configureServeLogger prefers the CLI flags and falls back to the
// config file's level when no flag is given.
func configureServeLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" || serveVerbose {
		return configureLogger(cmd, "verbose")
	}
	return cfg.NewLogger()
}
