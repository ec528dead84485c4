package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/checks"
	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/qa"
)

// Server exposes the reconciliation checks over HTTP
type Server struct {
	runner *qa.Runner
	addr   string
	logger *zap.Logger
}

// New creates a new API server
func New(runner *qa.Runner, addr string, logger *zap.Logger) *Server {
	return &Server{runner: runner, addr: addr, logger: logger.Named("api")}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Checks
	mux.HandleFunc("GET /checks", s.listChecks)
	mux.HandleFunc("POST /checks/{name}/run", s.runCheck)

	// Health check and metrics
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withCORS(mux)
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckInfo describes a registered check
type CheckInfo struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	CandidateClass string `json:"candidate_class"`
	Batch          bool   `json:"batch"`
}

func (s *Server) listChecks(w http.ResponseWriter, r *http.Request) {
	all := checks.All()
	infos := make([]CheckInfo, len(all))
	for i, c := range all {
		infos[i] = CheckInfo{
			Name:           c.Name,
			Description:    c.Description,
			CandidateClass: c.CandidateClass,
			Batch:          c.Batch,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checks": infos,
	})
}

// RunResponse is the JSON outcome of a check run
type RunResponse struct {
	RunID   string      `json:"run_id"`
	Check   string      `json:"check"`
	State   qa.State    `json:"state"`
	Header  []string    `json:"header"`
	Rows    [][]string  `json:"rows"`
	Escaped []domain.ID `json:"escaped"`
	Skipped []domain.ID `json:"skipped,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) runCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	check, ok := checks.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "check not found: "+name)
		return
	}

	var ids []domain.ID
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid id: "+part)
				return
			}
			ids = append(ids, domain.ID(n))
		}
	}

	var res *qa.Result
	var err error
	if ids != nil {
		res, err = s.runner.RunIDs(r.Context(), check, ids)
	} else {
		res, err = s.runner.Run(r.Context(), check, nil)
	}

	if res.State == qa.StateCancelled {
		writeError(w, http.StatusServiceUnavailable, "run cancelled")
		return
	}

	status := http.StatusOK
	if err != nil {
		s.logger.Error("Check run failed", zap.String("check", name), zap.Error(err))
		status = http.StatusInternalServerError
		var invalid *domain.InvalidCandidateTypeError
		if errors.As(err, &invalid) || errors.Is(err, domain.ErrMissingEntity) {
			status = http.StatusUnprocessableEntity
		}
	}

	if r.URL.Query().Get("format") == "tsv" {
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/tab-separated-values")
		w.Header().Set("Content-Disposition", `attachment; filename="`+res.FileName()+`"`)
		w.WriteHeader(http.StatusOK)
		if werr := res.Report.WriteTSV(w); werr != nil {
			s.logger.Warn("Failed to write report", zap.Error(werr))
		}
		return
	}

	resp := RunResponse{
		RunID:   res.RunID.String(),
		Check:   res.Check,
		State:   res.State,
		Header:  []string{},
		Rows:    [][]string{},
		Escaped: domain.IDs(res.Escaped),
	}
	if resp.Escaped == nil {
		resp.Escaped = []domain.ID{}
	}
	if res.Report != nil {
		resp.Header = res.Report.Header()
		if rows := res.Report.Rows(); rows != nil {
			resp.Rows = rows
		}
	}
	for _, f := range res.Skipped {
		resp.Skipped = append(resp.Skipped, f.Entity.ID)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
