package main

import (
	"log/slog"

	"github.com/nfpcapd-go/nfpcapd/cmd/nfpcapd/cmd"
	"github.com/nfpcapd-go/nfpcapd/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger, _ := logging.New(slog.LevelInfo, logging.EncodingLogfmt)
		logger.Fatal("nfpcapd terminated with an error", "error", err)
	}
}
