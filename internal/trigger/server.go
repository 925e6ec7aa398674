package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/audio/decode"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdictstore"
)

// maxEventBytes caps event bodies; uploads use the handler's file cap.
const maxEventBytes = 64 << 10

// Server exposes the handler over HTTP.
type Server struct {
	addr       string
	handler    *Handler
	mux        *http.ServeMux
	logger     logging.Logger
	maxUpload  int64
	httpServer *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler *Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	s := &Server{
		addr:      addr,
		handler:   handler,
		mux:       http.NewServeMux(),
		logger:    logger.WithFields(logging.Fields{"component": "server"}),
		maxUpload: handler.config.MaxFileBytes,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /events/object-finalized", s.handleObjectFinalized)
	s.mux.HandleFunc("POST /uploads", s.handleUpload)
	s.mux.HandleFunc("GET /verdicts/{key...}", s.handleGetVerdict)
	s.mux.HandleFunc("DELETE /verdicts/{key...}", s.handleDeleteVerdict)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// ServeHTTP lets the server be mounted or tested directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", logging.Fields{"addr": s.addr})
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// objectEvent accepts both a bare {bucket, name} body and a CloudEvent
// envelope with the object under data.
type objectEvent struct {
	ObjectRef
	Data *ObjectRef `json:"data,omitempty"`
}

func (e objectEvent) ref() ObjectRef {
	if e.Data != nil && e.Data.Name != "" {
		return *e.Data
	}
	return e.ObjectRef
}

func (s *Server) handleObjectFinalized(w http.ResponseWriter, r *http.Request) {
	var ev objectEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid event: %w", err))
		return
	}
	ref := ev.ref()
	if ref.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("event has no object name"))
		return
	}

	res, err := s.handler.Handle(r.Context(), ref)
	if err != nil {
		s.fail(w, err, logging.Fields{"object": ref.String()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if s.maxUpload > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	name := uuid.NewString()
	if ext := path.Ext(r.URL.Query().Get("filename")); ext != "" {
		name += strings.ToLower(ext)
	}

	res, err := s.handler.Upload(r.Context(), name, data)
	if err != nil {
		s.fail(w, err, logging.Fields{"object": name})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetVerdict(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	doc, err := s.handler.Verdict(r.Context(), key)
	if err != nil {
		s.fail(w, err, logging.Fields{"key": key})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteVerdict(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	q := r.URL.Query()
	purge, _ := strconv.ParseBool(q.Get("purge"))

	ref := ObjectRef{Bucket: q.Get("bucket"), Name: key}
	if err := s.handler.Forget(r.Context(), ref, purge); err != nil {
		s.fail(w, err, logging.Fields{"key": key})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, err error, fields logging.Fields) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error(err, "Request failed", fields)
	} else {
		s.logger.Debug("Request rejected", logging.Fields{"status": status, "error": err.Error()})
	}
	writeError(w, status, err)
}

// statusFor maps handler errors onto HTTP status codes.
func statusFor(err error) int {
	var decErr *decode.Error
	switch {
	case errors.As(err, &decErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, os.ErrNotExist), errors.Is(err, verdictstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
