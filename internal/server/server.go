// Package server exposes engine procedures over HTTP.
//
// Routes:
//   - POST /rpc/{procedure}: body is the argument object (empty means {})
//   - GET  /rpc: registered procedures
//   - GET  /healthz: database ping
//
// Every response uses the Response envelope. Error codes map to statuses:
// VALIDATION_ERROR 400, NOT_FOUND 404, CONSTRAINT_VIOLATION 409 and
// STORAGE_ERROR 500. Successful get procedures carry an ETag derived from
// the record digest and honour If-None-Match.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds caller-supplied request IDs.
const maxRequestIDLen = 128

// Config tunes the transport.
type Config struct {
	MaxConnections  int   // 0 = unlimited
	MaxBodyBytes    int64 // default 1 MiB
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration // default 10s
	CORSOrigin      string        // empty disables CORS headers
}

// Server is the HTTP front end for one engine.
type Server struct {
	engine  *engine.Engine
	cfg     Config
	logger  *zap.Logger
	handler http.Handler
}

// New builds a Server. Procedures must already be registered on e.
func New(e *engine.Engine, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{engine: e, cfg: cfg, logger: logger.Named("server")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc/{procedure}", s.handleRPC)
	mux.HandleFunc("GET /rpc", s.handleProcedures)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleNoRoute)

	s.handler = s.withRequestID(s.withAccessLog(s.withCORS(mux)))
	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully: in-flight requests get ShutdownTimeout to finish. Serve
// closes l.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.logger.Info("listening", zap.String("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("procedure")
	proc, ok := s.engine.Lookup(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, engine.NewNotFound("unknown procedure %q", name))
		return
	}

	args, status, e := s.readArgs(w, r)
	if e != nil {
		writeError(w, r, status, e)
		return
	}

	out, err := s.engine.Invoke(r.Context(), name, args)
	if err != nil {
		ee := engine.Classify(err)
		writeError(w, r, StatusFor(ee.Code), ee)
		return
	}

	if proc.Kind == engine.KindGet {
		if rec, ok := out.(ir.IRObject); ok {
			if digest, err := ir.RecordDigest(proc.Entity, rec); err == nil {
				etag := `"` + digest + `"`
				w.Header().Set("ETag", etag)
				if etagMatches(r.Header.Get("If-None-Match"), etag) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}
	}
	writeOK(w, r, out)
}

// readArgs decodes the request body into an argument object.
func (s *Server) readArgs(w http.ResponseWriter, r *http.Request) (ir.IRObject, int, *engine.Error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, &engine.Error{
				Code:    engine.ErrCodeValidation,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		}
		return nil, http.StatusBadRequest, &engine.Error{Code: engine.ErrCodeValidation, Message: "read body: " + err.Error()}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ir.IRObject{}, 0, nil
	}
	v, err := ir.UnmarshalIRValue(body)
	if err != nil {
		return nil, http.StatusBadRequest, &engine.Error{Code: engine.ErrCodeValidation, Message: "malformed JSON: " + err.Error()}
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, http.StatusBadRequest, &engine.Error{
			Code:    engine.ErrCodeValidation,
			Message: "request body must be a JSON object, got " + ir.TypeName(v),
		}
	}
	return obj, 0, nil
}

func (s *Server) handleProcedures(w http.ResponseWriter, r *http.Request) {
	procs := s.engine.Procedures()
	list := make(ir.IRArray, len(procs))
	for i, p := range procs {
		obj := ir.IRObject{"name": ir.IRString(p.Name), "kind": ir.IRString(p.Kind)}
		if p.Entity != "" {
			obj["entity"] = ir.IRString(p.Entity)
		}
		if p.Doc != "" {
			obj["doc"] = ir.IRString(p.Doc)
		}
		list[i] = obj
	}
	writeOK(w, r, list)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, engine.Classify(err))
		return
	}
	writeOK(w, r, ir.IRObject{"database": ir.IRString("ok")})
}

func (s *Server) handleNoRoute(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, engine.NewNotFound("no route for %s %s", r.Method, r.URL.Path))
}

// etagMatches implements the If-None-Match comparison for a strong tag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
