// Package web provides an HTTP status server for the pump controller.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/HeitererGarten/fao56-pump-control/internal/status"
)

// Server serves the status page, its JSON form and optionally metrics.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker. A nil
// metrics handler leaves /metrics unmounted.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	v := s.tracker.View()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, v)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	v := s.tracker.View()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(v))
}
