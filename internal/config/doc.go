// Package config loads, normalizes, and validates facewatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FACEWATCH_SOURCE_DIR. The Config type is built once at startup and passed
// explicitly to every pipeline component; nothing in the pipeline reads
// package-level state.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical extension lists, and clear validation errors.
package config
