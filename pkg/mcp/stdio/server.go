// Package stdio serves the MCP protocol over stdin/stdout for editor
// and CLI integration.
//
// Messages are newline-delimited JSON-RPC objects, one per line. All
// logging goes to stderr so stdout stays a pure protocol channel. The
// transport stores the session id returned by the first initialize and
// attaches it to every subsequent dispatch.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpd/pkg/mcp"
)

// Server implements the MCP stdio transport on a protocol handler.
//
// Example usage:
//
//	server := stdio.NewServer(handler, logger)
//	if err := server.Run(ctx); err != nil {
//	    return err
//	}
type Server struct {
	handler *mcp.Handler
	logger  *zap.Logger

	in  io.Reader
	out io.Writer

	writeMu   sync.Mutex
	sessionMu sync.Mutex
	sessionID string
}

// NewServer creates a stdio server reading stdin and writing stdout.
func NewServer(handler *mcp.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		handler: handler,
		logger:  logger,
		in:      os.Stdin,
		out:     os.Stdout,
	}
}

// Run reads and dispatches messages until stdin reaches EOF or the
// context is cancelled. Messages are dispatched in line order so a
// pipelined initialize establishes the session before anything behind
// it runs; only tools/call moves to its own goroutine, because a tool
// awaiting a client reply must not block the read loop that would
// deliver that reply.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	// A single line holds a full JSON-RPC message, same cap as the
	// HTTP body limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			copied := append([]byte(nil), line...)
			select {
			case lines <- copied:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
				}
				s.logger.Info("stdin closed, shutting down")
				return nil
			}
			var msg mcp.Message
			if err := json.Unmarshal(line, &msg); err != nil {
				s.logger.Warn("malformed message on stdin", zap.Error(err))
				s.write(mcp.NewErrorResponse(nil, mcp.ParseError, "Parse error: "+err.Error()))
				continue
			}
			if msg.Method == "tools/call" {
				go s.dispatch(ctx, &msg)
			} else {
				s.dispatch(ctx, &msg)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg *mcp.Message) {
	// Replies to server-initiated requests carry no method; route them
	// to whoever is waiting.
	if msg.IsResponse() {
		if !s.handler.ResolvePending(msg) {
			s.logger.Debug("dropping reply to unknown request", zap.Any("id", msg.ID))
		}
		return
	}

	ctx = mcp.WithClientSender(ctx, func(_ context.Context, m *mcp.Message) error {
		return s.write(m)
	})

	resp, newSessionID := s.handler.Handle(ctx, msg, s.currentSession())
	if newSessionID != "" {
		s.setSession(newSessionID)
		s.logger.Debug("session established", zap.String("session_id", newSessionID))
	}
	if resp != nil {
		if err := s.write(resp); err != nil {
			s.logger.Error("failed to write response", zap.Error(err))
		}
	}
}

// write serializes one message to stdout followed by a newline. Writes
// are mutex-serialized; concurrent dispatches never interleave lines.
func (s *Server) write(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.out.Write(append(b, '\n'))
	return err
}

func (s *Server) currentSession() string {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.sessionID
}

func (s *Server) setSession(id string) {
	s.sessionMu.Lock()
	s.sessionID = id
	s.sessionMu.Unlock()
}
