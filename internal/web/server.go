// Package web provides an HTTP status server for a decode run.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/irigb-decoder/internal/status"
)

// Server serves the status page, metrics and the live frame feed over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	tracker    *status.Tracker
	hub        *Hub
	log        *logrus.Entry
}

// New creates a Server that reads state from the given tracker and streams frames from hub.
func New(addr string, tracker *status.Tracker, hub *Hub, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		router:  mux.NewRouter(),
		tracker: tracker,
		hub:     hub,
		log:     log.WithField("component", "web"),
	}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.json", s.handleJSON).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if hub != nil {
		s.router.HandleFunc("/ws", hub.ServeWS).Methods("GET")
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

// Handler returns the server's router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("http server listening")
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and closes live feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.WithError(err).Error("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
