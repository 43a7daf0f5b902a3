// Package registry tracks the last-known steering value of every input
// source. It is the single shared mutable resource of the server: the ingest
// layer upserts into it, the merge engine and API read immutable snapshots
// from it, and a background loop evicts sources that have gone silent.
package registry
