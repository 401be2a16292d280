package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"photocull/internal/config"
	"photocull/internal/logging"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:           "photocull",
		Short:         "Metadata resolution and thumbnail tooling for photo culling",
		Long:          "photocull inspects photo directories the way the culling browser does: report database first, exiftool and XMP sidecars as fallback, with a square thumbnail pipeline on the side.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if metricsAddr != "" {
				serveMetrics(metricsAddr)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for the prometheus diagnostics endpoint (e.g. :9090)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLsCmd(&configPath))
	cmd.AddCommand(newMetaCmd(&configPath))
	cmd.AddCommand(newThumbsCmd(&configPath))
	cmd.AddCommand(newStatsCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "photocull %s (commit: %s)\n", Version, Commit)
		},
	}
}

// serveMetrics starts the diagnostics listener in the background. Failures
// are logged, not fatal; metrics are an aid, not a dependency.
func serveMetrics(addr string) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	go func() {
		logging.Info("diagnostics listening on %s", addr)
		if err := http.ListenAndServe(addr, r); err != nil {
			logging.Error("diagnostics listener failed: %v", err)
		}
	}()
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
