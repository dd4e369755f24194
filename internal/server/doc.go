// Package server implements the Nexus connection server.
//
// A Server owns one listening endpoint and serves every admitted connection
// with its own worker. Workers either echo each message back to the sender or
// broadcast it to the other clients in the Registry, depending on the
// configured mode. The optional HTTP surface exposes health, JSON statistics,
// Prometheus metrics and a WebSocket gateway that shares the same limits.
//
// The implementation is organized into files for the acceptor and lifecycle,
// workers, the registry, client connections, errors, and the HTTP surface.
package server
