// Package steering defines the shared wire types exchanged between producers
// (feeder, webcam estimator, phone client) and steermux-server. These are the
// canonical representations of a steering frame, separate from any internal
// server state.
package steering
