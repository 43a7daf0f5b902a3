// Package ws streams the merged steering value to consumer clients (a
// driving simulation or control loop) over WebSocket at a fixed cadence.
package ws
