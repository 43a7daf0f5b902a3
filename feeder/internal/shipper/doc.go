// Package shipper delivers steering samples to steermux-server over a
// WebSocket connection, reconnecting with exponential backoff when the server
// is unreachable.
package shipper
