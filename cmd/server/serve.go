package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/server"
)

type serveFlags struct {
	configPath        string
	port              int
	httpAddr          string
	logLevel          string
	logFormat         string
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "path to a .toml or .yaml config file")
	f.IntVarP(&flags.port, "port", "p", 0, "TCP port for line clients")
	f.StringVar(&flags.httpAddr, "http", "", "address for the WebSocket and admin HTTP listener (disabled when empty)")
	f.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")
	f.DurationVar(&flags.heartbeatInterval, "heartbeat-interval", 0, "interval between PING rounds")
	f.DurationVar(&flags.heartbeatTimeout, "heartbeat-timeout", 0, "evict sessions silent for longer than this")

	return cmd
}

// loadConfig layers defaults, the config file, CHAT_* variables and
// explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command, flags serveFlags) (server.Config, error) {
	cfg := server.NewConfig()
	if flags.configPath != "" {
		fromFile, err := server.LoadConfigFile(flags.configPath)
		if err != nil {
			return server.Config{}, err
		}
		cfg = fromFile
	}
	cfg.ApplyEnv()

	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = flags.port
	}
	if changed("http") {
		cfg.HTTPAddr = flags.httpAddr
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if changed("heartbeat-interval") {
		cfg.Heartbeat.Interval = server.Duration(flags.heartbeatInterval)
	}
	if changed("heartbeat-timeout") {
		cfg.Heartbeat.Timeout = server.Duration(flags.heartbeatTimeout)
	}

	return cfg.Sanitized(), nil
}

func runServe(cfg server.Config) error {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	logrus.SetOutput(logger.Out)
	logrus.SetFormatter(logger.Formatter)
	logrus.SetLevel(logger.GetLevel())

	chat := server.NewServer(cfg, logger)
	if err := chat.Start(cfg.Port); err != nil {
		return fmt.Errorf("failed to start chat server: %w", err)
	}
	defer chat.Stop()

	errChan := make(chan error, 1)

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = server.CreateServer(cfg.HTTPAddr, server.SetupRoutes(chat))
		go func() {
			errChan <- server.StartServer(httpServer)
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	logger.Infof("Chat server started on port %d", cfg.Port)

	select {
	case sig := <-sigs:
		logger.Infof("Received signal %s. Shutting down...", sig)
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	if httpServer != nil {
		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout.Std()); err != nil {
			logger.WithError(err).Warn("HTTP server did not shut down cleanly")
		}
	}
	return nil
}
