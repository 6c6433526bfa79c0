package main

import (
	"log/slog"
	"os"

	"github.com/FlorentCollin/longshot/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "longshot")
	logging.Set(l)
	return l
}
