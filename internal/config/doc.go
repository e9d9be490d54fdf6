// Package config loads and validates the process configuration from
// environment variables (with optional .env file support in development).
package config
