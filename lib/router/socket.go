// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/codec"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/progress"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/service"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/usage"
)

// Stream frame types written on the subscribe stream.
const (
	FrameProgress        = "progress"
	FrameUsage           = "usage"
	FrameHistoryComplete = "history_complete"
	FrameHeartbeat       = "heartbeat"
	FrameResync          = "resync"
)

// heartbeatInterval is the idle time after which a subscribe stream
// writes a heartbeat frame.
const heartbeatInterval = 30 * time.Second

// subscriberChannelSize bounds the frames queued for one subscriber.
// When the queue is full new frames are dropped and the subscriber is
// resynchronised from history.
const subscriberChannelSize = 256

// Frame is one CBOR value on the subscribe stream. Type selects which
// of the other fields is set:
//
//   - "progress": Event
//   - "usage": Usage, nil when usage is unknown
//   - "history_complete": no payload; live frames follow
//   - "heartbeat": no payload
//   - "resync": frames were dropped; history is replayed and another
//     history_complete follows
type Frame struct {
	Type  string          `json:"type"`
	Event *progress.Event `json:"event,omitempty"`
	Usage *usage.Snapshot `json:"usage,omitempty"`
}

// dispatchRequest is the body of the "dispatch" action.
type dispatchRequest struct {
	Command Command `json:"command"`
}

// subscribeRequest is the body of the "subscribe" stream action.
type subscribeRequest struct {
	History bool `json:"history"`
}

// Register exposes the router on server: "dispatch" takes a full
// Command, every Kind is also an action of its own whose request
// fields are the Command fields, and "subscribe" streams Frames.
// Unknown actions dispatch as unknown kinds and are ignored.
func (r *Router) Register(server *service.SocketServer) {
	server.Handle("dispatch", func(ctx context.Context, raw []byte) (any, error) {
		var request dispatchRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding command: %w", err)
		}
		return r.Dispatch(ctx, request.Command)
	})
	for _, kind := range Kinds {
		server.Handle(string(kind), r.direct)
	}
	server.HandleFallback(r.direct)
	server.HandleStream("subscribe", r.subscribe)
}

// direct handles a request whose action names the command kind.
func (r *Router) direct(ctx context.Context, raw []byte) (any, error) {
	var header struct {
		Action string `json:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	var command Command
	if err := codec.Unmarshal(raw, &command); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", header.Action, err)
	}
	command.Kind = Kind(header.Action)
	return r.Dispatch(ctx, command)
}

// subscriber queues frames for one subscribe stream.
type subscriber struct {
	channel chan Frame
	resync  atomic.Bool
}

func (s *subscriber) offer(frame Frame) {
	select {
	case s.channel <- frame:
	default:
		s.resync.Store(true)
	}
}

// attach registers a fresh subscriber with the progress and usage
// broadcasters. history is the progress backlog at the moment of
// registration: every later event reaches the new channel and no
// earlier one does.
func (r *Router) attach() (sub *subscriber, history []progress.Event, detach func()) {
	sub = &subscriber{channel: make(chan Frame, subscriberChannelSize)}
	history, unsubscribeProgress := r.progress.SubscribeWithHistory(func(event progress.Event) {
		sub.offer(Frame{Type: FrameProgress, Event: &event})
	})
	unsubscribeUsage := r.usage.Subscribe(func(snapshot *usage.Snapshot) {
		frame := Frame{Type: FrameUsage}
		if snapshot != nil {
			copied := *snapshot
			frame.Usage = &copied
		}
		sub.offer(frame)
	})
	return sub, history, func() {
		unsubscribeProgress()
		unsubscribeUsage()
	}
}

func (r *Router) subscribe(ctx context.Context, raw []byte, conn net.Conn) {
	var request subscribeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		r.logger.Debug("invalid subscribe request", "error", err)
		return
	}

	sub, history, detach := r.attach()
	defer func() { detach() }()

	encoder := codec.NewEncoder(conn)
	if !request.History {
		history = nil
	}
	if err := r.writeSnapshot(encoder, history); err != nil {
		r.logger.Debug("subscribe stream write error", "error", err)
		return
	}

	heartbeat := r.clock.After(heartbeatInterval)
	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-sub.channel:
			if sub.resync.Load() {
				// The overflowed queue is abandoned whole. Its frames,
				// and anything published while swapping, are covered
				// by the new registration's history.
				detach()
				sub, history, detach = r.attach()
				if err := encoder.Encode(Frame{Type: FrameResync}); err != nil {
					r.logger.Debug("subscribe stream write error", "error", err)
					return
				}
				if err := r.writeSnapshot(encoder, history); err != nil {
					r.logger.Debug("subscribe stream write error during resync", "error", err)
					return
				}
				continue
			}
			if err := encoder.Encode(frame); err != nil {
				r.logger.Debug("subscribe stream write error", "error", err)
				return
			}

		case <-heartbeat:
			if err := encoder.Encode(Frame{Type: FrameHeartbeat}); err != nil {
				r.logger.Debug("subscribe stream heartbeat error", "error", err)
				return
			}
			heartbeat = r.clock.After(heartbeatInterval)
		}
	}
}

// writeSnapshot writes history, the current usage, and the
// history_complete marker.
func (r *Router) writeSnapshot(encoder *codec.Encoder, history []progress.Event) error {
	for i := range history {
		if err := encoder.Encode(Frame{Type: FrameProgress, Event: &history[i]}); err != nil {
			return err
		}
	}
	if err := encoder.Encode(Frame{Type: FrameUsage, Usage: r.usage.Current()}); err != nil {
		return err
	}
	return encoder.Encode(Frame{Type: FrameHistoryComplete})
}
