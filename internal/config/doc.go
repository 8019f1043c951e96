// Package config provides YAML configuration loading and validation for the
// captioning service: HTTP API, capture cadence, speech gate, backend client,
// language defaults and logging.
package config
