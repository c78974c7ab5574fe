package cli

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
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/SacredTexts/huly/internal/engine"
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/workspace"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxTxBytes        = 1 << 20

	// ActorHeader names the account a request is made on behalf of.
	ActorHeader = "X-Procflow-Actor"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Address string

	// Ready, when set, receives the bound address once the server listens.
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the process gate over HTTP",
		Long: `Serve the process gate over HTTP until interrupted.

Endpoints:
  POST /tx                  submit a JSON transaction
  GET  /executions/{card}   executions of a card
  POST /rollback/{tx}       undo a committed step
  GET  /healthz             liveness
  GET  /metrics             Prometheus metrics (serve.metrics in the config)

The acting account is taken from the X-Procflow-Actor header, --actor
otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.config()
	addr := cfg.Serve.Address
	if opts.Address != "" {
		addr = opts.Address
	}

	ws, err := opts.openWorkspace(engine.WithTracer(otel.Tracer("procflow/serve")))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ws.Close(); closeErr != nil {
			slog.Error("error closing workspace", "error", closeErr)
		}
	}()

	srv := NewServer(ws, ir.Actor(opts.Actor))
	if cfg.Serve.Metrics {
		if err := srv.EnableMetrics(); err != nil {
			return WrapExitError(ExitCommandError, "register metrics", err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen", err)
	}
	slog.Info("serving process gate", "addr", ln.Addr().String(), "database", cfg.Database, "metrics", cfg.Serve.Metrics)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", ln.Addr())
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	if err := srv.Serve(ctx, ln); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// Server exposes a workspace over HTTP.
type Server struct {
	ws    *workspace.Workspace
	actor ir.Actor
	clock *engine.Clock
	mux   *http.ServeMux
}

// NewServer creates a server acting as actor unless a request names its
// own.
func NewServer(ws *workspace.Workspace, actor ir.Actor) *Server {
	s := &Server{ws: ws, actor: actor, clock: engine.NewWallClock(), mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /tx", s.handleTx)
	s.mux.HandleFunc("GET /executions/{card}", s.handleExecutions)
	s.mux.HandleFunc("POST /rollback/{tx}", s.handleRollback)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return s
}

// EnableMetrics registers the engine collectors with a fresh registry and
// mounts /metrics.
func (s *Server) EnableMetrics() error {
	reg := prometheus.NewRegistry()
	if err := engine.RegisterMetrics(reg); err != nil {
		return err
	}
	reg.MustRegister(collectors.NewGoCollector())
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	return nil
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{Handler: s.mux, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) factory(r *http.Request) *ir.TxFactory {
	actor := s.actor
	if h := r.Header.Get(ActorHeader); h != "" {
		actor = ir.Actor(h)
	}
	return ir.NewTxFactory(actor, s.clock, engine.UUIDv7Generator{})
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTxBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, ErrCodeBadInput, err.Error())
		return
	}
	tx, err := ir.DecodeTx(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadInput, err.Error())
		return
	}
	tx = s.factory(r).Stamp(tx)

	res, err := s.ws.Submit(r.Context(), tx)
	if err != nil {
		slog.Error("transaction failed", "tx", tx.Meta().ID, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeStore, err.Error())
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusConflict, CLIResponse{
			Status: "error",
			Data:   res,
			Error:  &CLIError{Code: ErrCodeRejected, Message: "precondition failed"},
		})
		return
	}
	writeJSON(w, http.StatusOK, CLIResponse{Status: "ok", Data: res})
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	card := ir.Ref(r.PathValue("card"))
	execs, err := engine.ExecutionsOf(r.Context(), s.ws.Store, card)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeStore, err.Error())
		return
	}
	views := make([]ExecutionView, 0, len(execs))
	for _, e := range execs {
		todos, err := engine.CheckpointsOf(r.Context(), s.ws.Store, e.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeStore, err.Error())
			return
		}
		views = append(views, executionView(e, todos))
	}
	writeJSON(w, http.StatusOK, CLIResponse{Status: "ok", Data: views})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("tx")
	tx, res, err := s.ws.Undo(r.Context(), s.factory(r), txID)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, workspace.ErrTxNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, ErrCodeUndo, err.Error())
		return
	}
	out := RollbackResult{Undone: txID}
	if tx != nil {
		out.Compensation = &res
	}
	writeJSON(w, http.StatusOK, CLIResponse{Status: "ok", Data: out})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, CLIResponse{Status: "error", Error: &CLIError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body CLIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("write response", "error", err)
	}
}
