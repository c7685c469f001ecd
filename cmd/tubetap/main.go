package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/000Volk000/TubeTap"
	_ "github.com/000Volk000/TubeTap/matchers/ytdlp"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	zap.RedirectStdLog(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = tubetap.WithLogger(ctx, logger)

	a := &application{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		level:  &config.Level,
	}
	if err := a.cliApp().RunContext(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		_ = logger.Sync()
		stop()
		os.Exit(exitCode(err))
	}
}
