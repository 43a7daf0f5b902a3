// Package config loads and validates the feeder configuration from the
// `feeder:` section of config.yaml.
package config
