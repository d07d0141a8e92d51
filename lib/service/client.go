// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/codec"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout covers the server's read and write timeouts plus
// handler time.
const responseReadTimeout = 45 * time.Second

// maxResponseSize matches the server's request limit.
const maxResponseSize = 1024 * 1024

// ServiceError is returned by Call when the server answers ok=false.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client talks to a SocketServer. Each call uses a new connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Call sends action with fields and decodes the response data into
// result (when both are non-nil). An ok=false response is returned as
// *ServiceError; transport failures are plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	conn, err := c.open(ctx, action, fields)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Half-close so the server sees EOF after the request.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("reading response for %q: %w", action, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// Stream sends a streaming action and passes every frame to handle
// until the server closes the stream, handle returns an error, or ctx
// is cancelled. A clean close by the server returns nil; cancellation
// returns ctx.Err().
func (c *Client) Stream(ctx context.Context, action string, fields map[string]any, handle func(frame codec.RawMessage) error) error {
	conn, err := c.open(ctx, action, fields)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Closing the connection unblocks Decode on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	decoder := codec.NewDecoder(conn)
	for {
		var frame codec.RawMessage
		if err := decoder.Decode(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading %q stream: %w", action, err)
		}
		if err := handle(frame); err != nil {
			return err
		}
	}
}

// open dials the socket and writes the request map.
func (c *Client) open(ctx context.Context, action string, fields map[string]any) (net.Conn, error) {
	request := make(map[string]any, len(fields)+1)
	maps.Copy(request, fields)
	request["action"] = action

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing %q request: %w", action, err)
	}
	return conn, nil
}
