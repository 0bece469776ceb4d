// Package status serves the read-only HTTP status surface: GET /status for
// the current BotState and GET /healthz as a liveness probe. Grounded on
// the teacher's cmd/api/main.go (gorilla/mux router, gorilla/handlers
// CORS+logging+recovery middleware chain, writeJSON/writeErr helpers), with
// its Postgres-backed handlers replaced by a single persistence.Store read
// per spec 7's "status server reads from disk, not from the live
// in-memory state" requirement, so a crashed bot still serves its last
// known state.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/cryptoedge/cryptoedge/persistence"
	"github.com/cryptoedge/cryptoedge/trading"
)

// Server serves /status and /healthz over the given Store.
type Server struct {
	store *persistence.Store
}

// New builds a Server reading BotState from store.
func New(store *persistence.Store) *Server {
	return &Server{store: store}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// getStatus re-reads BotState fresh from disk on every request: the
// in-memory Engine state is never shared with this package, so a stale
// status server can never mask a crashed trading loop.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	var state trading.BotState
	exists, err := s.store.Load(&state)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to read persisted state")
		return
	}
	if !exists {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no state persisted yet"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handler builds the full mux.Router wrapped in the CORS+logging+recovery
// middleware chain, ready to hand to an http.Server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.getStatus).Methods("GET")
	r.HandleFunc("/healthz", s.healthz).Methods("GET")

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.RecoveryHandler()(cors(r))
}

// ListenAndServe builds, but does not start, an *http.Server for addr that
// serves Handler over store. The caller starts it with its ListenAndServe
// method and stops it with Shutdown.
func ListenAndServe(addr string, store *persistence.Store) *http.Server {
	s := New(store)
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
