// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings of the task store, data store, Beam proxy and
// pipelines while keeping configuration details separate from the core.
package config
