// Package api defines the transport DTOs shared by the daemon's HTTP
// surface and the CLI, the service layer that produces them, and the HTTP
// client used to reach a running daemon.
package api
