package main

import (
	"log/slog"
	"os"

	"github.com/goliatone/go-inbox/adapters/gologger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "inboxd",
		Short:         "Inbound messaging reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(inboxCmd())

	if err := root.Execute(); err != nil {
		newLogProvider().GetLogger("inboxd").Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

func newLogProvider() *gologger.SlogProvider {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: gologger.ParseLevel(logLevel)})
	return gologger.NewSlogProvider(slog.New(handler))
}
