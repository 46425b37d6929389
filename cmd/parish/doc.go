// Command parish is the operator CLI: event management, pipeline runs, and
// daemon status, all through the parishd HTTP API.
package main
