// bench_ratchet runs the external benchmark once, scrapes latency and
// throughput from its output, and writes the ratchet JSON CI tracks. The
// benchmark's exit code is recorded in the ratchet and becomes this tool's
// own exit status, so a failing benchmark still leaves a record behind.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clocksmith/doppler/internal/bench"
	"github.com/clocksmith/doppler/internal/logger"
)

var (
	model       = flag.String("model", "", "Model identifier passed to the benchmark")
	preset      = flag.String("preset", "default", "Runtime preset passed to the benchmark")
	prompt      = flag.String("prompt", "short", "Prompt class passed to the benchmark")
	maxTokens   = flag.Int("max-tokens", 64, "Max tokens per run")
	runs        = flag.Int("runs", 1, "Measured runs")
	warmup      = flag.Int("warmup", 1, "Warmup runs")
	outFile     = flag.String("output", "bench/ratchet.json", "Ratchet JSON path")
	command     = flag.String("command", "", "Override the benchmark command prefix (space-separated)")
	timeout     = flag.Duration("timeout", 0, "Kill the benchmark after this long (0 disables)")
	metricsAddr = flag.String("metrics", "", "Address to serve Prometheus metrics (empty disables)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat   = flag.String("log-format", "console", "Log format (console or json)")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)

	if *model == "" {
		fmt.Println("Error: -model flag is required")
		flag.Usage()
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Log.Info("Metrics serving", "address", *metricsAddr+"/metrics")
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Log.Info("Metrics server error", "error", err)
			}
		}()
	}

	cfg := bench.Config{
		Model:     *model,
		Preset:    *preset,
		Prompt:    *prompt,
		MaxTokens: *maxTokens,
		Runs:      *runs,
		Warmup:    *warmup,
		Timeout:   *timeout,
	}
	if *command != "" {
		cfg.Command = strings.Fields(*command)
	}

	res, err := bench.Run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Benchmark could not run: %v", err)
	}

	ratchet := &bench.Ratchet{
		Model:         *model,
		RuntimePreset: *preset,
		Prompt:        *prompt,
		MaxTokens:     *maxTokens,
		ReturnCode:    res.ReturnCode,
		Metrics:       res.Metrics,
	}
	if err := bench.WriteRatchet(*outFile, ratchet); err != nil {
		log.Fatalf("Failed to write ratchet: %v", err)
	}

	fmt.Printf("Benchmark finished in %s (return code %d)\n", res.Duration.Round(time.Millisecond), res.ReturnCode)
	fmt.Printf("  firstTokenMs: %s\n", metricStr(res.Metrics.FirstTokenMs))
	fmt.Printf("  tokensPerS:   %s\n", metricStr(res.Metrics.TokensPerS))
	fmt.Printf("Ratchet written to: %s\n", *outFile)

	// The benchmark's exit code is this tool's exit code; the timeout
	// sentinel (-1) maps to a plain failure.
	if res.ReturnCode != 0 {
		code := res.ReturnCode
		if code < 0 {
			code = 1
		}
		os.Exit(code)
	}
}

func metricStr(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.2f", *v)
}
