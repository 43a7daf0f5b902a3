// Package ingest accepts producer WebSocket connections and feeds their
// steering frames into the source registry. Each connection runs an
// independent receive loop; a malformed frame is dropped with a diagnostic
// and never closes the connection or touches existing registry state.
package ingest
