// Package preview implements the built-in developer-preview server: it
// rebuilds a self-contained HTML bundle from the project sources on every
// request, serves static project files, and exposes a long-poll endpoint
// for change notification.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/project"
)

// pollHold is how long /__poll holds an unanswered request.
const pollHold = 2 * time.Second

// pollInterval is the internal re-check cadence while holding.
const pollInterval = 100 * time.Millisecond

// contentTypes maps served file extensions to media types.
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".js":   "application/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".svg":  "image/svg+xml",
}

// Server serves the preview for one project directory.
type Server struct {
	projectDir string
	logger     ports.Logger

	lastMod  atomic.Int64
	listener net.Listener
	httpSrv  *http.Server
}

// NewServer creates a preview server for a project directory.
func NewServer(projectDir string, logger ports.Logger) *Server {
	return &Server{
		projectDir: projectDir,
		logger:     logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/__poll", s.handlePoll).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.handleStatic).Methods(http.MethodGet)
	return r
}

// Start listens on an ephemeral localhost port and serves in the
// background. It returns the bound port.
func (s *Server) Start() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Router()}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(context.Background(), "preview server stopped",
				ports.F("error", err.Error()))
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// URL returns the server's base URL after Start.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Touch records that project files may have changed. Poll clients observe
// the new timestamp.
func (s *Server) Touch() {
	s.lastMod.Store(time.Now().UnixMilli())
}

// handleIndex rebuilds and serves the bundle.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	files, err := project.Snapshot(r.Context(), s.projectDir, BundleExtensions)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypes[".html"])
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(BuildBundle(files)))
}

// handlePoll answers immediately when a change happened after the
// client's timestamp, otherwise holds the request up to pollHold.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	deadline := time.NewTimer(pollHold)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		if mod := s.lastMod.Load(); mod > since {
			s.writePollState(w, true, mod)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-deadline.C:
			s.writePollState(w, false, s.lastMod.Load())
			return
		case <-tick.C:
		}
	}
}

func (s *Server) writePollState(w http.ResponseWriter, changed bool, mod int64) {
	w.Header().Set("Content-Type", contentTypes[".json"])
	w.Header().Set("Cache-Control", "no-cache")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"changed":      changed,
		"lastModified": mod,
	})
}

// handleStatic serves project files verbatim.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	path := filepath.Join(s.projectDir, filepath.FromSlash(rel))

	// Clean above guarantees the path cannot escape the project dir.
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeFile(w, r, path)
}
