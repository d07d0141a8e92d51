// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

// Package router is the single entry point for operator commands. A
// [Command] names one of the kinds in the vocabulary below and
// [Router.Dispatch] maps it onto the worker supervisor, the credential
// store, the usage reconciler, and the event log:
//
//	start-worker      stop-worker       toggle-pause     pause-worker
//	resume-worker     write-worker      worker-status    switch-account
//	delete-account    delete-exhausted  list-accounts    refresh-token
//	refresh-all       import-token      export-accounts  refresh-usage
//	load-usage        clear-usage-cache clear-log        get-log
//
// Unknown kinds are ignored, not rejected, so newer clients can talk
// to older daemons. The Router keeps no state of its own; everything
// lives in the components it was built with.
//
// [Router.Register] exposes the router on a service.SocketServer: the
// "dispatch" action carries a Command, every command kind is also
// accepted directly as an action name, and the "subscribe" stream
// delivers progress and usage frames.
package router
