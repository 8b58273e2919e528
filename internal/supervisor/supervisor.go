// Package supervisor owns in-flight tasks: it dispatches exec requests to
// the right subsystem, fans their output into per-task frames, and
// enforces cancellation through one token per task.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pocketnode/core/internal/npm"
	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/project"
	"github.com/pocketnode/core/internal/runner"
)

// Sink receives the frames a task produces. Implementations forward them
// to the message channel. Frames for one task are delivered in emission
// order; Exit or Error is always the final frame for an id.
type Sink interface {
	Stdout(id int64, data []byte)
	Stderr(id int64, data []byte)
	Exit(id int64, code int)
	Error(id int64, msg string)
}

// task is one live exec request.
type task struct {
	id     int64
	cancel context.CancelFunc
}

// Supervisor dispatches exec requests and tracks them until completion.
type Supervisor struct {
	logger ports.Logger
	npm    *npm.Manager
	runner *runner.Runner
	dirs   project.Dirs

	mu       sync.Mutex
	tasks    map[int64]*task
	previews map[string]*previewHandle
}

// New creates a supervisor.
func New(logger ports.Logger, manager *npm.Manager, run *runner.Runner, dirs project.Dirs) *Supervisor {
	return &Supervisor{
		logger:   logger,
		npm:      manager,
		runner:   run,
		dirs:     dirs,
		tasks:    make(map[int64]*task),
		previews: make(map[string]*previewHandle),
	}
}

// sinkEmitter adapts a Sink to the Emitter interface for one task id.
type sinkEmitter struct {
	sink Sink
	id   int64
}

func (e sinkEmitter) Emit(stream ports.Stream, data []byte) {
	if stream == ports.Stdout {
		e.sink.Stdout(e.id, data)
	} else {
		e.sink.Stderr(e.id, data)
	}
}

// Exec runs one command asynchronously. The task's terminal frame is
// always Exit (or Error when the handler itself failed).
func (s *Supervisor) Exec(id int64, command string, args []string, cwd string, sink Sink) {
	if cwd == "" {
		cwd = s.dirs.ProjectsDir
	}
	if err := os.MkdirAll(cwd, 0o755); err != nil {
		sink.Error(id, fmt.Sprintf("cannot create working directory: %v", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if old, ok := s.tasks[id]; ok {
		// Ids are unique per unfinished task; a duplicate replaces the
		// stale entry after canceling it.
		old.cancel()
	}
	s.tasks[id] = &task{id: id, cancel: cancel}
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
			// Any completed command may have touched project files.
			s.touchPreviews()
		}()

		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(ctx, "task panicked",
					ports.F("id", id), ports.F("panic", fmt.Sprint(r)))
				sink.Error(id, fmt.Sprint(r))
			}
		}()

		emit := sinkEmitter{sink: sink, id: id}
		code := s.dispatch(ctx, command, args, cwd, emit)
		sink.Exit(id, code)
	}()
}

// Kill cancels a live task. Returns false when the id is unknown.
func (s *Supervisor) Kill(id int64) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	return true
}

// CancelAll cancels every live task. Used on app-level pause.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[int64]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
}

// Live reports whether a task id is still running.
func (s *Supervisor) Live(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}
