// Package server exposes a Store over HTTP, giving the harness a
// self-contained target to point writers and readers at.
//
// The server doubles as the chaos side of a run: injected latency and a
// transient-failure rate turn a well-behaved backend into one that
// exercises the harness's retry budgets and staleness tolerance.
package server

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/rand"

	"github.com/roach88/kvchaos/internal/store"
)

// maxValueBytes caps a single stored value. The header is 16 bytes and
// generated payloads are configured in the low kilobytes, so 1 MiB is far
// above anything a legitimate client sends.
const maxValueBytes = 1 << 20

// Server serves a Store over HTTP with optional fault injection.
type Server struct {
	store   store.Store
	log     *slog.Logger
	latency time.Duration

	mu       sync.Mutex
	failRate float64
	rng      *rand.Rand
}

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every request by d before it touches the store.
func WithLatency(d time.Duration) Option {
	return func(s *Server) {
		s.latency = d
	}
}

// WithFailRate makes a fraction of requests fail with 503 before touching
// the store. The seed makes the failure pattern reproducible.
func WithFailRate(rate float64, seed uint64) Option {
	return func(s *Server) {
		s.failRate = rate
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New creates a server over the given store.
func New(st store.Store, opts ...Option) *Server {
	s := &Server{
		store: st,
		log:   slog.Default(),
		rng:   rand.New(rand.NewSource(0)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes:
//
//	GET    /health    liveness probe
//	GET    /kv/{key}  200 value bytes | 404
//	PUT    /kv/{key}  204, body is the value
//	DELETE /kv/{key}  204
//
// Keys travel base64url-encoded in the path.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/kv/{key}", s.handleGet)
	r.Put("/kv/{key}", s.handlePut)
	r.Delete("/kv/{key}", s.handleDelete)
	return r
}

// inject applies the configured chaos to one request, reporting whether it
// should fail.
func (s *Server) inject() bool {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.failRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.failRate
}

// key extracts and decodes the key path parameter; a nil return means the
// response has already been written.
func (s *Server) key(w http.ResponseWriter, r *http.Request) []byte {
	key, err := store.DecodeKey(chi.URLParam(r, "key"))
	if err != nil {
		http.Error(w, "malformed key", http.StatusBadRequest)
		return nil
	}
	return key
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.inject() {
		http.Error(w, "injected failure", http.StatusServiceUnavailable)
		return
	}
	key := s.key(w, r)
	if key == nil {
		return
	}

	val, ok, err := s.store.Get(r.Context(), key)
	if err != nil {
		s.log.Error("store get failed", "error", err)
		http.Error(w, "store failure", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(val)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if s.inject() {
		http.Error(w, "injected failure", http.StatusServiceUnavailable)
		return
	}
	key := s.key(w, r)
	if key == nil {
		return
	}

	val, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(val) > maxValueBytes {
		http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := s.store.Put(r.Context(), key, val); err != nil {
		s.log.Error("store put failed", "error", err)
		http.Error(w, "store failure", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.inject() {
		http.Error(w, "injected failure", http.StatusServiceUnavailable)
		return
	}
	key := s.key(w, r)
	if key == nil {
		return
	}

	if err := s.store.Delete(r.Context(), key); err != nil {
		s.log.Error("store delete failed", "error", err)
		http.Error(w, "store failure", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
