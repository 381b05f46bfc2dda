package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fastami/internal/agi"
	"fastami/internal/ami"
	"fastami/internal/cdr"
	"fastami/internal/config"
	"fastami/internal/eventbridge"
)

const defaultConfigPath = "/etc/fastami/fastami.yaml"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fastami",
		Short: "FastAGI/AMI gateway for Asterisk",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to the configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the FastAGI server and the AMI client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the connection to the AMI manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing()
		},
	}

	rootCmd.AddCommand(serveCmd, pingCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("FASTAMI_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}
	return config.Load(path)
}

func buildLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if l, err := zapcore.ParseLevel(cfg.Level); err == nil && cfg.Level != "" {
		level = l
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// runServe starts every service
func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting services")

	// CDR repository (optional)
	var repo *cdr.Repository
	if cfg.CDR.Enabled {
		repo, err = cdr.NewRepository(cfg.CDR)
		if err != nil {
			return fmt.Errorf("failed to initialize CDR: %w", err)
		}
		defer repo.Close()
		logger.Info("CDR repository connected", zap.String("host", cfg.CDR.Host))
	}

	// AMI client with redial
	stop := make(chan struct{})
	bridge := eventbridge.NewBridge(logger)
	if cfg.Bridge.Enabled {
		go func() {
			if err := bridge.Serve(cfg.Bridge.Address()); err != nil {
				logger.Error("bridge stopped", zap.Error(err))
			}
		}()
	}
	go amiLoop(cfg, logger, bridge, stop)

	// FastAGI server with the demo handler
	handler := &helloHandler{repo: repo, logger: logger}
	server := agi.NewServer(cfg.FastAGI.Address(), handler)
	server.SetLogger(logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start FastAGI: %w", err)
	}
	defer server.Stop()

	logger.Info("services started", zap.String("fastagi_addr", cfg.FastAGI.Address()))

	// wait for the termination signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	close(stop)
	logger.Info("signal received, shutting down")
	return nil
}

// amiLoop keeps the manager connection alive, redialing when it drops. Every
// reconnect starts from a fresh client: call state does not survive the drop.
func amiLoop(cfg *config.Config, logger *zap.Logger, bridge *eventbridge.Bridge, stop <-chan struct{}) {
	interval := time.Duration(cfg.AMI.ReconnectInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		client := ami.NewClient(&cfg.AMI)
		client.SetLogger(logger)
		if err := client.Connect(); err != nil {
			logger.Error("failed to connect to AMI", zap.Error(err))
			select {
			case <-stop:
				return
			case <-time.After(interval):
			}
			continue
		}

		events := client.Subscribe()
		// Pump returns when the connection drops and the channel closes
		bridge.Pump(events)
		client.Close()

		select {
		case <-stop:
			return
		case <-time.After(interval):
		}
	}
}

// runPing connects, authenticates and sends one Ping to the manager
func runPing() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Log)
	defer logger.Sync()

	client := ami.NewClient(&cfg.AMI)
	client.SetLogger(logger)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	start := time.Now()
	msg, err := client.Ping()
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", msg.Response(), time.Since(start).Round(time.Millisecond))
	return nil
}
