// benchrun-validationd is a standalone entry point for the validation
// service, for Docker deployments that do not ship the full benchrun CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankittk/benchrun/internal/otel"
	"github.com/ankittk/benchrun/internal/validate/service"
)

func main() {
	socketPath := flag.String("socket", "", "Unix socket path to listen on")
	addr := flag.String("addr", "", "HTTP address to listen on (e.g. 0.0.0.0:9747)")
	workDir := flag.String("workdir", "", "Working directory the build tool runs in")
	tool := flag.String("tool", "moon", "Build tool binary")
	timeoutSec := flag.Int("timeout", 300, "Per-request tool budget in seconds")
	enableOtel := flag.Bool("otel", true, "Enable OpenTelemetry metrics (/metrics, HTTP mode only)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := service.Options{
		SocketPath: *socketPath,
		Addr:       *addr,
		WorkDir:    *workDir,
		Tool:       *tool,
		Timeout:    time.Duration(*timeoutSec) * time.Second,
	}
	if *enableOtel && *addr != "" {
		handler, err := otel.InitMeterProvider(ctx, "benchrun-validation")
		if err != nil {
			slog.Warn("otel init failed, serving without /metrics", "err", err)
		} else {
			_ = otel.InitMetrics(ctx)
			opts.MetricsHandler = handler
			opts.UseOtelHTTP = true
		}
	}

	srv, err := service.New(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
