// capture_acts pulls an activation snapshot from a running engine's Arrow
// Flight endpoint and writes it to a file for later inspection or diffing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clocksmith/doppler/internal/flightsource"
	"github.com/clocksmith/doppler/internal/logger"
)

var (
	addr        = flag.String("addr", "localhost:8815", "Arrow Flight endpoint serving activations")
	ticket      = flag.String("ticket", flightsource.DefaultTicket, "Flight ticket to request")
	outFile     = flag.String("output", "doppler_activations.json", "Output snapshot file (.json, .arrow, or .ipc)")
	timeout     = flag.Duration("timeout", 30*time.Second, "Fetch timeout")
	metricsAddr = flag.String("metrics", "", "Address to serve Prometheus metrics (empty disables)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat   = flag.String("log-format", "console", "Log format (console or json)")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Log.Info("Metrics serving", "address", *metricsAddr+"/metrics")
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Log.Info("Metrics server error", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("Fetching activations from %s (ticket %q)\n", *addr, *ticket)
	snap, err := flightsource.FetchTicket(ctx, *addr, *ticket)
	if err != nil {
		log.Fatalf("Failed to fetch activations: %v", err)
	}

	fmt.Printf("Model: %s\n", snap.Model)
	fmt.Printf("Prompt: %q\n", snap.Prompt)
	fmt.Printf("Tokens: %d, layers: %d, tensors: %d\n",
		snap.SequenceLength(), snap.NumLayers(), snap.TensorCount())
	fmt.Printf("Fingerprint: %016x\n", snap.Fingerprint())

	fmt.Printf("Saving activations to: %s\n", *outFile)
	if err := snap.Save(*outFile); err != nil {
		log.Fatalf("Failed to save activations: %v", err)
	}

	fmt.Printf("Done!\n")
}
