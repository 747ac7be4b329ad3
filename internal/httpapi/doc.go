// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

// Package httpapi exposes accounts over HTTP.
//
// Routes:
//
//	GET  /              health payload
//	POST /users/        register (JSON body)
//	GET  /users/{id}    read a user
//	POST /auth/token    log in (form: username, password)
//	GET  /auth/me       the bearer token's user
//	GET  /ws/game       real-time session gate
//
// Failures are JSON objects with a "detail" member. Validation failures use
// status 422 and a list of {loc, msg, type} entries as detail.
package httpapi
