// Package config handles configuration loading, parsing, and validation
// from defaults, an optional config file, environment variables and
// command-line flags. It provides type-safe access to the settings of the
// HTTP server, the task engine, the solution collection and telemetry.
package config
