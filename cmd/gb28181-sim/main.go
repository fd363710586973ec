package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/config"
	"gb28181-simulator/pkg/gb28181"
	"gb28181-simulator/pkg/media"
	"gb28181-simulator/pkg/metrics"
)

var logger = logrus.New()

func main() {
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	serverIP := flag.String("server-ip", cfg.ServerIP, "GB28181 platform IP address")
	serverPort := flag.Int("server-port", cfg.ServerPort, "GB28181 platform SIP port")
	channels := flag.Int("channels", cfg.ChannelCount, "number of simulated channels")
	deviceID := flag.String("device-id", cfg.DeviceID, "20-digit device code")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	cfg.ServerIP = *serverIP
	cfg.ServerPort = *serverPort
	cfg.ChannelCount = *channels
	cfg.DeviceID = *deviceID
	cfg.LogLevel = *logLevel

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	metrics.Init(logger)
	metrics.Serve(cfg.MetricsPort, logger)

	logger.WithFields(logrus.Fields{
		"server":    cfg.ServerIP,
		"port":      cfg.ServerPort,
		"device_id": cfg.DeviceID,
		"channels":  cfg.ChannelCount,
	}).Info("Starting GB28181 device simulator")

	client, err := gb28181.NewClient(cfg, media.NewFFmpegBridge(logger), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil {
		// Registration failure is fatal for this run; no retry loop.
		logger.WithError(err).Error("Client exited with error")
		os.Exit(1)
	}
}
