// Package config loads, normalizes, and validates sieve configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SIEVE_INPUT_LIST. The Config type centralizes every knob the pipeline and
// CLI need: input list location, output/staging directories, the member naming
// conventions used to classify archive content, and the worker bounds of the
// validation and tool lanes.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical suffix lists, and clear validation errors.
package config
