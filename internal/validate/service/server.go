// Package service implements the long-lived validation service: a listener
// on a Unix socket or HTTP address that executes build-tool actions against
// one fixed working directory, strictly one invocation at a time.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ankittk/benchrun/internal/otel"
	"github.com/ankittk/benchrun/internal/validate"
	"github.com/ankittk/benchrun/pkg/models"
)

// DefaultTimeout bounds one build-tool invocation. Matches the
// orchestrator's remote RPC timeout so a runaway tool cannot block the queue
// past the point any client is still waiting.
const DefaultTimeout = 300 * time.Second

// Options configures the service. Exactly one of SocketPath and Addr must be
// set.
type Options struct {
	SocketPath string // Unix-socket mode
	Addr       string // HTTP mode, e.g. "0.0.0.0:9747"
	WorkDir    string
	Tool       string        // build tool binary, default "moon"
	Timeout    time.Duration // per-request tool budget, default DefaultTimeout

	MetricsHandler http.Handler // if set, served at /metrics in HTTP mode
	UseOtelHTTP    bool         // wrap the HTTP handler with otelhttp
}

// Server handles validation requests against one working directory.
// Connections are accepted concurrently; the underlying tool invocation is
// serialized FIFO through execMu because two simultaneous invocations racing
// over the shared build cache corrupt results.
type Server struct {
	opts   Options
	execMu sync.Mutex
}

// New validates the options and returns a server.
func New(opts Options) (*Server, error) {
	if (opts.SocketPath == "") == (opts.Addr == "") {
		return nil, errors.New("exactly one of socket path and HTTP address is required")
	}
	if opts.WorkDir == "" {
		return nil, errors.New("workdir is required")
	}
	if opts.Tool == "" {
		opts.Tool = validate.DefaultTool
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Server{opts: opts}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests before
// returning. In socket mode the socket file is removed after the drain, so
// it never points at a dead listener.
func (s *Server) Run(ctx context.Context) error {
	if s.opts.SocketPath != "" {
		return s.runSocket(ctx)
	}
	return s.runHTTP(ctx)
}

func (s *Server) runSocket(ctx context.Context) error {
	path := s.opts.SocketPath
	// A stale socket from a previous unclean exit blocks the bind.
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("bind %s: %w", path, err)
	}
	slog.Info("validation service listening", "socket", path, "workdir", s.opts.WorkDir)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(conn)
		}()
	}

	// Stop accepting, let in-flight requests complete, then delete the
	// socket file. This ordering is load-bearing: the file must not outlive
	// the listener.
	wg.Wait()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove socket", "path", path, "err", err)
	}
	slog.Info("validation service stopped", "socket", path)
	return nil
}

// handleConn reads the whole request (until the peer closes its write side),
// parses it as JSON, dispatches, and writes one response. Malformed input
// gets a structured error response, not a dropped connection.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	data, err := io.ReadAll(conn)
	if err != nil {
		s.writeSocketResponse(conn, models.SocketResponse{ExitCode: 1, Error: "read request: " + err.Error()})
		return
	}

	var req models.SocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeSocketResponse(conn, models.SocketResponse{ExitCode: 1, Error: "invalid json"})
		return
	}
	if req.Action == "" {
		s.writeSocketResponse(conn, models.SocketResponse{ExitCode: 1, Error: "missing action"})
		return
	}
	if !req.Action.Valid() {
		s.writeSocketResponse(conn, models.SocketResponse{ExitCode: 1, Error: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	resp := s.dispatch(context.Background(), req.Action, req.Filter, "socket")
	s.writeSocketResponse(conn, resp)
}

func (s *Server) writeSocketResponse(conn net.Conn, resp models.SocketResponse) {
	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

// dispatch serializes the tool invocation and maps its outcome onto the
// socket response shape.
func (s *Server) dispatch(ctx context.Context, action models.Action, filter, transport string) models.SocketResponse {
	otel.AddQueued()
	s.execMu.Lock()
	otel.RemoveQueued()
	defer s.execMu.Unlock()

	start := time.Now()
	exitCode, output, err := s.runTool(ctx, action, filter)
	otel.RecordRequest(ctx, string(action), transport, time.Since(start))
	if err != nil {
		return models.SocketResponse{ExitCode: 1, Error: err.Error(), Output: output}
	}

	resp := models.SocketResponse{ExitCode: exitCode, Output: output}
	if action == models.ActionTest {
		resp.TestResults = validate.ExtractSummary(output)
	}
	return resp
}

// runTool executes one build-tool action in the working directory with a
// bounded execution time; CommandContext kills a runaway subprocess when the
// budget elapses so it cannot block the queue indefinitely.
func (s *Server) runTool(ctx context.Context, action models.Action, filter string) (exitCode int, output string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	args := []string{string(action)}
	if filter != "" {
		args = append(args, filter)
	}
	cmd := exec.CommandContext(ctx, s.opts.Tool, args...)
	cmd.Dir = s.opts.WorkDir
	out, runErr := cmd.CombinedOutput()
	output = string(out)
	if ctx.Err() == context.DeadlineExceeded {
		return 1, output, fmt.Errorf("%s %s timed out after %s", s.opts.Tool, action, s.opts.Timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Tool ran and failed; a legitimate result, not a service error.
			return exitErr.ExitCode(), output, nil
		}
		return 1, output, fmt.Errorf("run %s: %v", s.opts.Tool, runErr)
	}
	return 0, output, nil
}

// handler builds the HTTP-mode handler (also used directly by tests).
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	if s.opts.MetricsHandler != nil {
		mux.Handle("/metrics", s.opts.MetricsHandler)
	}
	mux.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body models.TestRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		resp := s.dispatch(r.Context(), models.ActionTest, "", "http")
		out := models.TestResponse{TestResult: models.TestResult{ExitCode: resp.ExitCode}}
		if resp.TestResults != nil {
			out.TestResult.Summary = &models.HTTPSummary{
				Total:  resp.TestResults.Total,
				Passed: resp.TestResults.Passed,
				Failed: resp.TestResults.Failed,
			}
		}
		out.Error = resp.Error
		writeJSON(w, out)
	})

	var handler http.Handler = mux
	handler = requestLogMiddleware(handler)
	if s.opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "benchrun-validation")
	}
	return handler
}

func (s *Server) runHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// Write timeout must exceed the tool budget or long test runs get
		// their responses cut off.
		WriteTimeout: s.opts.Timeout + 30*time.Second,
	}

	slog.Info("validation service listening", "addr", s.opts.Addr, "workdir", s.opts.WorkDir)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout+30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
