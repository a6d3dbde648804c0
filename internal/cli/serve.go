package cli

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ankittk/benchrun/internal/otel"
	"github.com/ankittk/benchrun/internal/validate/service"
)

func newServeCmd() *cobra.Command {
	var (
		socketPath string
		addr       string
		workDir    string
		tool       string
		timeoutSec int
		enableOtel bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the validation service in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workDir == "" {
				return errors.New("--workdir is required")
			}
			opts := service.Options{
				SocketPath: socketPath,
				Addr:       addr,
				WorkDir:    workDir,
				Tool:       tool,
				Timeout:    time.Duration(timeoutSec) * time.Second,
			}
			if enableOtel && addr != "" {
				handler, err := otel.InitMeterProvider(cmd.Context(), "benchrun-validation")
				if err != nil {
					slog.Warn("otel init failed, serving without /metrics", "err", err)
				} else {
					_ = otel.InitMetrics(cmd.Context())
					opts.MetricsHandler = handler
					opts.UseOtelHTTP = true
				}
			}
			srv, err := service.New(opts)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "Unix socket path to listen on")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP address to listen on (e.g. 0.0.0.0:9747)")
	cmd.Flags().StringVar(&workDir, "workdir", "", "Working directory the build tool runs in")
	cmd.Flags().StringVar(&tool, "tool", "moon", "Build tool binary")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 300, "Per-request tool budget in seconds")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics (/metrics, HTTP mode only)")

	return cmd
}
