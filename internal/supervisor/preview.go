package supervisor

import (
	"context"
	"time"

	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/preview"
	"github.com/pocketnode/core/internal/shell"
)

// previewHandle tracks one project's running preview server and how many
// tasks are currently serving it.
type previewHandle struct {
	server *preview.Server
	refs   int
}

// servePreview starts (or joins) the built-in preview server for a
// project and blocks until the task is canceled. Canceled servers report
// exit 130, the same as any killed long-running task.
func (s *Supervisor) servePreview(ctx context.Context, cwd string, emit ports.Emitter) int {
	s.mu.Lock()
	handle, ok := s.previews[cwd]
	if !ok {
		handle = &previewHandle{server: preview.NewServer(cwd, s.logger)}
		if _, err := handle.server.Start(); err != nil {
			s.mu.Unlock()
			emitLine(emit, ports.Stderr, "preview: "+err.Error())
			return shell.ExitFailure
		}
		s.previews[cwd] = handle
	}
	handle.refs++
	url := handle.server.URL()
	s.mu.Unlock()

	emitLine(emit, ports.Stdout, "Preview server running at "+url)
	emitLine(emit, ports.Stdout, "Watching for file changes...")

	<-ctx.Done()

	s.mu.Lock()
	handle.refs--
	last := handle.refs == 0
	if last {
		delete(s.previews, cwd)
	}
	s.mu.Unlock()

	if last {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = handle.server.Stop(stopCtx)
	}

	return 130
}

// touchPreviews bumps the change timestamp of every running preview
// server. Called when a command that may have mutated files completes.
func (s *Supervisor) touchPreviews() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, handle := range s.previews {
		handle.server.Touch()
	}
}

// PreviewURL returns the running preview URL for a project, if any.
func (s *Supervisor) PreviewURL(cwd string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle, ok := s.previews[cwd]; ok {
		return handle.server.URL()
	}
	return ""
}
