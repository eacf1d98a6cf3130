// Package config resolves process settings for the executor binaries.
//
// Values come from built-in defaults, an optional config file, WASMEXEC_*
// environment variables and command-line flags, in increasing priority.
package config
