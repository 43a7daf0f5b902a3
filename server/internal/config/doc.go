// Package config loads and validates the server-side configuration from the
// `server:` section of config.yaml, and watches the file so merge weights and
// smoothing can be changed without a restart.
package config
