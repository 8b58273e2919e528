package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/supervisor"
)

// maxFrameSize bounds one inbound line.
const maxFrameSize = 4 << 20

// Core handles channel sessions against one supervisor.
type Core struct {
	sup    *supervisor.Supervisor
	info   Info
	logger ports.Logger
}

// NewCore creates the channel core.
func NewCore(sup *supervisor.Supervisor, info Info, logger ports.Logger) *Core {
	return &Core{sup: sup, info: info, logger: logger}
}

// session is one connected client. Frame writes are serialized so frames
// from concurrent tasks never interleave mid-line.
type session struct {
	core *Core

	mu    sync.Mutex
	write func(Frame) error
}

// Serve runs the message loop over one line-oriented stream until EOF or
// context cancellation. A ready frame is sent exactly once at the start.
func (c *Core) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	s := &session{core: c, write: func(f Frame) error { return enc.Encode(f) }}
	s.send(Frame{Type: TypeReady, NodeVersion: c.info.NodeVersion})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxFrameSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, line)
	}
	return scanner.Err()
}

// send writes one frame.
func (s *session) send(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.write(f)
}

// handleLine decodes and dispatches one inbound frame.
func (s *session) handleLine(_ context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.send(Frame{Type: TypeError, Message: "malformed frame: " + err.Error()})
		return
	}

	switch req.Type {
	case TypePing:
		s.send(Frame{
			Type:        TypePong,
			ID:          req.ID,
			NodeVersion: s.core.info.NodeVersion,
			Platform:    s.core.info.Platform,
		})

	case TypeExec:
		s.core.sup.Exec(req.ID, req.Command, req.Args, req.Cwd, s)

	case TypeKill:
		// The killed frame goes out before the canceled task can emit its
		// exit frame.
		if s.core.sup.Live(req.ProcessID) {
			s.send(Frame{Type: TypeKilled, ID: req.ProcessID})
			s.core.sup.Kill(req.ProcessID)
		} else {
			s.send(Frame{Type: TypeError, ID: req.ID, Message: "no such process"})
		}

	case TypeWriteFile:
		s.handleWriteFile(req)

	case TypeReadFile:
		s.handleReadFile(req)

	case TypeMkdir:
		s.handleMkdir(req)

	case TypeReadDir:
		s.handleReadDir(req)

	case TypeGetInfo:
		info := s.core.info
		s.send(Frame{
			Type:        TypeInfo,
			ID:          req.ID,
			NodeVersion: info.NodeVersion,
			Platform:    info.Platform,
			Arch:        info.Arch,
			DataDir:     info.DataDir,
			ProjectsDir: info.ProjectsDir,
			ExecPath:    info.ExecPath,
		})

	default:
		s.send(Frame{Type: TypeError, ID: req.ID, Message: "unknown message type: " + req.Type})
	}
}

// resolvePath anchors relative filesystem-op paths at the projects dir.
func (s *session) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.core.info.ProjectsDir, path)
}

func (s *session) handleWriteFile(req Request) {
	path := s.resolvePath(req.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.send(Frame{Type: TypeError, ID: req.ID, Message: err.Error()})
		return
	}
	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		s.send(Frame{Type: TypeError, ID: req.ID, Message: err.Error()})
		return
	}
	s.send(Frame{Type: TypeDone, ID: req.ID})
}

func (s *session) handleReadFile(req Request) {
	data, err := os.ReadFile(s.resolvePath(req.Path))
	if err != nil {
		s.send(Frame{Type: TypeError, ID: req.ID, Message: err.Error()})
		return
	}
	s.send(Frame{Type: TypeResult, ID: req.ID, Content: strPtr(string(data))})
}

func (s *session) handleMkdir(req Request) {
	if err := os.MkdirAll(s.resolvePath(req.Path), 0o755); err != nil {
		s.send(Frame{Type: TypeError, ID: req.ID, Message: err.Error()})
		return
	}
	s.send(Frame{Type: TypeDone, ID: req.ID})
}

func (s *session) handleReadDir(req Request) {
	dirEntries, err := os.ReadDir(s.resolvePath(req.Path))
	if err != nil {
		s.send(Frame{Type: TypeError, ID: req.ID, Message: err.Error()})
		return
	}

	entries := make([]DirEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		entries = append(entries, DirEntry{Name: e.Name(), IsDirectory: e.IsDir()})
	}
	s.send(Frame{Type: TypeResult, ID: req.ID, Entries: entries})
}

// The session forwards task output as frames; it is the supervisor's Sink.

// Stdout forwards one stdout chunk.
func (s *session) Stdout(id int64, data []byte) {
	s.send(Frame{Type: TypeStdout, ID: id, Data: string(data)})
}

// Stderr forwards one stderr chunk.
func (s *session) Stderr(id int64, data []byte) {
	s.send(Frame{Type: TypeStderr, ID: id, Data: string(data)})
}

// Exit sends the task's terminal exit frame.
func (s *session) Exit(id int64, code int) {
	s.send(Frame{Type: TypeExit, ID: id, Code: intPtr(code)})
}

// Error sends the task's terminal error frame.
func (s *session) Error(id int64, msg string) {
	s.send(Frame{Type: TypeError, ID: id, Message: msg})
}

var _ supervisor.Sink = (*session)(nil)
