package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCommand(a).ExecuteContext(ctx)
	a.close()
	if err == nil {
		return
	}

	logrus.Errorf("Command failed: %v", err)
	a.notifyFatal(err)
	stop()

	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	os.Exit(1)
}
