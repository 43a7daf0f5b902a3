// Package signal produces steering values for the feeder: deterministic test
// waveforms (sine, sweep, center) and a stdin reader for driving the server
// by hand.
package signal
