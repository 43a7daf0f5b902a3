// Package api is the read-only HTTP façade over the source registry. Every
// response is computed fresh from the live snapshot at request time — the
// merged value is never cached, so staleness is always judged against now.
package api
