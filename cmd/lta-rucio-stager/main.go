// Command lta-rucio-stager runs the Rucio Stager worker: the
// admission-control gate that moves completed bundle archives from the
// bundler's outbox into the local Rucio RSE ingest directory.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blinkdog/lta/pkg/config"
	"github.com/blinkdog/lta/pkg/health"
	"github.com/blinkdog/lta/pkg/ltaclient"
	"github.com/blinkdog/lta/pkg/ltalog"
	"github.com/blinkdog/lta/pkg/metrics"
	"github.com/blinkdog/lta/pkg/restclient"
	"github.com/blinkdog/lta/pkg/stager"
	"github.com/blinkdog/lta/pkg/workerrt"
)

// version is set via ldflags during build.
var version = "dev"

var metricsAddr string

var rootCmd = &cobra.Command{
	Use:     "lta-rucio-stager",
	Short:   "Admission-control gate between the bundler outbox and the Rucio RSE ingest directory",
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lta-rucio-stager: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	spec := config.Merge(config.CommonSpec(), (&stager.Stager{}).ExpectedConfig())
	resolved, err := config.FromEnvironment(spec)
	if err != nil {
		return exitConfigError(err)
	}

	logger := ltalog.New(ltalog.Config{
		ComponentType: "RucioStager",
		ComponentName: resolved["COMPONENT_NAME"],
		Level:         ltalog.ParseLevel(resolved["LOG_LEVEL"]),
	})

	ltaRC := restclient.New(restclient.Config{
		BaseURL: resolved["LTA_REST_URL"],
		Token:   resolved["LTA_REST_TOKEN"],
		Timeout: durationSeconds(resolved["WORK_TIMEOUT_SECONDS"]),
		Retries: intOrDefault(resolved["WORK_RETRIES"], 3),
	})

	lta := ltaclient.New(ltaRC)
	component := stager.New()

	rt, err := workerrt.New("rucio_stager", spec, lta, logger)
	if err != nil {
		return exitConfigError(err)
	}

	serveMetrics(metricsAddr, logger, resolved["LTA_REST_URL"])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.Run(ctx, component)
	return nil
}

func exitConfigError(err error) error {
	fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
	os.Exit(1)
	return err
}

func durationSeconds(s string) time.Duration {
	return time.Duration(intOrDefault(s, 30)) * time.Second
}

func intOrDefault(s string, def int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}

func serveMetrics(addr string, logger zerolog.Logger, ltaURL string) {
	metrics.SetVersion(version)
	checker := health.NewHTTPChecker(ltaURL).WithStatusRange(200, 499)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Check(r.Context())
		if !result.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, result.Message)
	})
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics server exited")
		}
	}()
}
