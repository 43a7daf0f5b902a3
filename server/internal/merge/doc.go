// Package merge reduces the registry's live sources into one steering value.
// Merge itself is a pure function over an immutable snapshot: deterministic,
// order-independent, and safe to run concurrently with any number of reads.
// Table holds the hot-reloadable per-source weights; Smoother is an optional
// exponential moving average for the broadcast path.
package merge
