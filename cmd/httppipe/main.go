// Command httppipe relays a byte stream between two unrelated Unix pipes by
// way of an HTTP endpoint: one invocation acts as the relay server, and two
// more act as the sender and receiver clients, selected automatically by
// which of their standard streams is a pipe.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ygrebnov/httppipe/internal/clirole"
	"github.com/ygrebnov/httppipe/internal/metrics"
	"github.com/ygrebnov/httppipe/internal/relay"
	"github.com/ygrebnov/httppipe/internal/transport/receiver"
	"github.com/ygrebnov/httppipe/internal/transport/sender"
)

func main() {
	app := &cli.App{
		Name:      "httppipe",
		Usage:     "relay a byte stream between two pipes over HTTP",
		UsageText: "httppipe [--debug] [--server] <endpoint>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "server", Usage: "run as the relay server instead of a client"},
			&cli.BoolFlag{Name: "metrics", Usage: "log periodic in-memory metrics snapshots (server mode only)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one argument: the endpoint", 1)
	}
	endpoint := c.Args().First()

	log := newLogger(c.Bool("debug"))

	if c.Bool("server") {
		return runServer(endpoint, log, c.Bool("metrics"))
	}
	return runClient(endpoint, log)
}

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func runServer(addr string, log *logrus.Logger, withMetrics bool) error {
	var prov metrics.Provider
	if withMetrics {
		bp := metrics.NewBasicProvider()
		go logMetricsPeriodically(bp, log)
		prov = bp
	}

	h := relay.NewHandler(log, prov)
	log.WithField("addr", addr).Info("relay listening")
	return http.ListenAndServe(addr, h.Router())
}

// logMetricsPeriodically logs a snapshot of the relay's sequencer
// instruments every 10 seconds. The instrument names must match those
// internal/relay registers against prov.
func logMetricsPeriodically(bp *metrics.BasicProvider, log *logrus.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	pushed := bp.Counter("relay_sequencer_packets_pushed_total").(*metrics.BasicCounter)
	duplicates := bp.Counter("relay_sequencer_duplicates_skipped_total").(*metrics.BasicCounter)
	queueDepth := bp.UpDownCounter("relay_sequencer_queue_depth").(*metrics.BasicUpDownCounter)
	pushLatency := bp.Histogram("relay_sequencer_push_latency_seconds").(*metrics.BasicHistogram)

	for range ticker.C {
		lat := pushLatency.Snapshot()
		log.WithFields(logrus.Fields{
			"packets_pushed":    pushed.Snapshot(),
			"duplicates_skipped": duplicates.Snapshot(),
			"queue_depth":        queueDepth.Snapshot(),
			"push_latency_mean":  lat.Mean,
			"push_latency_count": lat.Count,
		}).Info("relay metrics")
	}
}

func runClient(endpoint string, log *logrus.Logger) error {
	role, err := clirole.Detect()
	if err != nil {
		return err
	}

	ctx := context.Background()
	entry := log.WithField("endpoint", endpoint)

	switch role {
	case clirole.Sender:
		return sender.New(endpoint, entry).Run(ctx, os.Stdin)
	case clirole.Receiver:
		return receiver.New(endpoint, entry).Run(ctx, os.Stdout)
	default:
		return fmt.Errorf("unknown role")
	}
}
