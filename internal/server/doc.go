// Package server implements the chat core: line connections, sessions, the
// registry, the router, the heartbeat monitor and the acceptor, plus the
// HTTP surface that carries WebSocket clients and the admin API.
//
// A Server is created with NewServer and started with Start or Listen. Each
// accepted connection becomes a Session that reads one line at a time,
// interprets commands and hands outbound messages to the Router. Operators
// observe the core through Subscribe.
package server
