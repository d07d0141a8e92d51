// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/codec"
)

// ActionFunc handles a request/response action. raw is the full CBOR
// request including the "action" field. A nil result yields
// {ok: true}; a non-nil one is encoded into the response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc handles a streaming action. It owns conn until it
// returns and writes CBOR frames with codec.NewEncoder(conn). ctx is
// cancelled when the server shuts down.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Response is the envelope for request/response actions.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer serves the CBOR protocol on a Unix socket. Register
// handlers before calling Serve.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc
	fallback   ActionFunc
	logger     *slog.Logger

	// activeConnections lets Serve wait for in-flight handlers.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		logger:     logger,
	}
}

// Handle registers a request/response action. Panics on duplicates.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.claim(action)
	s.handlers[action] = handler
}

// HandleStream registers a streaming action. Panics on duplicates.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.claim(action)
	s.streams[action] = handler
}

// HandleFallback sets the handler for actions nothing else claims.
func (s *SocketServer) HandleFallback(handler ActionFunc) {
	s.fallback = handler
}

func (s *SocketServer) claim(action string) {
	_, handled := s.handlers[action]
	_, streamed := s.streams[action]
	if handled || streamed {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Serve accepts connections until ctx is cancelled, then waits for
// active handlers. A stale socket file is removed first; the socket
// file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := s.Listen()
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// Listen binds the socket without serving, so callers can report
// readiness before Serve's accept loop starts.
func (s *SocketServer) Listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	// Not every platform supports mode bits on socket files.
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		s.logger.Debug("restricting socket permissions failed", "path", s.socketPath, "error", err)
	}
	return listener, nil
}

// ServeListener serves on a listener returned by Listen.
func (s *SocketServer) ServeListener(ctx context.Context, listener net.Listener) error {
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout bounds how long a client may take to send its request.
const readTimeout = 30 * time.Second

// writeTimeout bounds writing a response envelope.
const writeTimeout = 10 * time.Second

// maxRequestSize caps a single request.
const maxRequestSize = 1024 * 1024

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// CBOR is self-delimiting, so one Decode reads exactly the request.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if stream, ok := s.streams[header.Action]; ok {
		s.serveStream(ctx, header.Action, stream, raw, conn)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		handler = s.fallback
	}
	if handler == nil {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

// serveStream hands conn to a stream handler. The connection is closed
// when ctx ends so a handler blocked on a write returns promptly.
func (s *SocketServer) serveStream(ctx context.Context, action string, stream StreamFunc, raw []byte, conn net.Conn) {
	conn.SetReadDeadline(time.Time{})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-streamCtx.Done()
		conn.Close()
	}()

	s.logger.Debug("stream started", "action", action)
	stream(streamCtx, raw, conn)
	s.logger.Debug("stream ended", "action", action)
}

func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
