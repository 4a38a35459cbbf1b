// Package main runs the employee capture agent: rotating microphone segments
// uploaded to the attendance server for the duration of a shift.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/attendtrack/backend/config"
	"github.com/attendtrack/backend/internal/agent"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Agent.ServerURL == "" || cfg.Agent.Token == "" {
		logger.Fatal("AGENT_SERVER_URL and AGENT_TOKEN are required")
	}

	a := agent.New(agent.Config{
		ServerURL:      cfg.Agent.ServerURL,
		Token:          cfg.Agent.Token,
		DeviceID:       cfg.Agent.DeviceID,
		FFmpegPath:     cfg.Audio.FFmpegPath,
		InputDevice:    cfg.Agent.InputDevice,
		SegmentSeconds: cfg.Agent.SegmentSeconds,
		BitrateKbps:    cfg.Audio.BitrateKbps,
		SampleRate:     cfg.Audio.SampleRate,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("capture started",
		zap.String("server", cfg.Agent.ServerURL),
		zap.Int("segment_seconds", cfg.Agent.SegmentSeconds))

	if err := a.Run(ctx); err != nil {
		switch {
		case errors.Is(err, agent.ErrDeviceNotFound):
			logger.Error("capture device not found; check AGENT_INPUT_DEVICE", zap.Error(err))
		case errors.Is(err, agent.ErrPermissionDenied):
			logger.Error("microphone access denied; grant audio permissions to this process", zap.Error(err))
		default:
			logger.Error("capture failed", zap.Error(err))
		}
		os.Exit(1)
	}
	logger.Info("capture stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
