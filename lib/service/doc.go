// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the daemon's Unix socket protocol.
//
// Every connection carries exactly one request: the client writes a
// CBOR map with an "action" field, and the server either answers with
// one [Response] envelope and closes (actions registered with
// [SocketServer.Handle]) or keeps writing frames until either side
// hangs up (actions registered with [SocketServer.HandleStream]).
// Unknown actions go to the handler set with
// [SocketServer.HandleFallback], or get an error response.
//
// [Client] is the matching client: [Client.Call] for request/response
// and [Client.Stream] for streams.
package service
