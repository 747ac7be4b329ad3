// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

// Package gate admits real-time websocket sessions.
//
// A connection to the game channel carries a room name and a bearer token
// as query parameters. The token is resolved before the session exists; a
// connection whose token does not resolve receives a single close frame with
// status 1008 (policy violation) and nothing else. An admitted session echoes
// every text message back to its sender until the peer disconnects.
//
// Rooms are recorded on the session but do not route messages.
package gate
