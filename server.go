package testd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-testd/coordinator"
	"github.com/ethereum-optimism/infra/op-testd/events"
	"github.com/ethereum-optimism/infra/op-testd/registry"
	"github.com/ethereum-optimism/infra/op-testd/runner"
)

// Server is the daemon's HTTP surface. Run requests stream their progress
// over SSE; everything else is plain JSON.
type Server struct {
	log      log.Logger
	cfg      ServerConfig
	version  string
	registry *registry.Registry
	coord    *coordinator.Coordinator

	// runCtx bounds test execution to the daemon's lifetime. Run requests
	// deliberately do not use the request context: a peer hanging up must
	// not cancel the run it started.
	runCtx context.Context

	srv      *http.Server
	listener net.Listener
}

func NewServer(logger log.Logger, cfg ServerConfig, version string, reg *registry.Registry, coord *coordinator.Coordinator, runCtx context.Context) *Server {
	return &Server{
		log:      logger,
		cfg:      cfg,
		version:  version,
		registry: reg,
		coord:    coord,
		runCtx:   runCtx,
	}
}

// Start binds the listener. Serving begins with Serve, so the bound
// address is available as soon as Start returns.
func (s *Server) Start() error {
	hdlr := mux.NewRouter()
	hdlr.HandleFunc("/health", s.HandleHealth).Methods("GET")
	hdlr.HandleFunc("/files", s.HandleFiles).Methods("GET")
	hdlr.HandleFunc("/run", s.HandleRun).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{"GET"},
	})

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.srv = &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
		// SSE responses stay open for the whole run, so only the read
		// side carries a deadline.
		ReadHeaderTimeout: time.Duration(s.cfg.TimeoutSeconds) * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.log.Info("server listening", "addr", s.Addr())
	return nil
}

func (s *Server) Serve() error {
	return s.srv.Serve(s.listener)
}

// Addr returns the bound listen address, useful when the configured port
// is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Suites      int    `json:"suites"`
	Running     bool   `json:"running"`
	Connections int    `json:"connections"`
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.coord.State()
	status := "ready"
	if state.Current() == coordinator.StateShuttingDown {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      status,
		Version:     s.version,
		Suites:      s.registry.TopLevelCount(),
		Running:     state.Running(),
		Connections: s.coord.Connections().Len(),
	})
}

func (s *Server) HandleFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.BuildFileMap())
}

func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stream, err := events.NewStream(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// A dropped connection only silences the stream. The run keeps going
	// under the daemon's context and cleanup still executes.
	go func() {
		<-r.Context().Done()
		stream.MarkDead()
	}()

	s.coord.Execute(s.runCtx, req, stream)
}

func parseRunRequest(r *http.Request) (coordinator.RunRequest, error) {
	q := r.URL.Query()

	reporter := runner.ReporterKind(q.Get("reporter"))
	if reporter == "" {
		reporter = runner.ReporterSpec
	}
	if !reporter.Valid() {
		return coordinator.RunRequest{}, fmt.Errorf("unknown reporter %q", q.Get("reporter"))
	}

	invert, err := queryBool(q.Get("invert"))
	if err != nil {
		return coordinator.RunRequest{}, fmt.Errorf("invalid invert value: %w", err)
	}
	bail, err := queryBool(q.Get("bail"))
	if err != nil {
		return coordinator.RunRequest{}, fmt.Errorf("invalid bail value: %w", err)
	}
	snapshotUpdate, err := queryBool(q.Get("snapshotUpdate"))
	if err != nil {
		return coordinator.RunRequest{}, fmt.Errorf("invalid snapshotUpdate value: %w", err)
	}

	return coordinator.RunRequest{
		NamePattern:    q.Get("grep"),
		FilePattern:    q.Get("file"),
		Invert:         invert,
		Reporter:       reporter,
		Bail:           bail,
		SnapshotUpdate: snapshotUpdate,
	}, nil
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func (s *Server) allowedOrigins() []string {
	if s.cfg.AllowAllOrigins {
		return []string{"*"}
	}
	return []string{"http://localhost", "http://127.0.0.1"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("failed to encode response", "err", err)
	}
}
