// Package config loads the Nexis runtime configuration from a YAML file
// plus environment variables (via .env when present). Model API keys are
// read exclusively from the environment and never round-trip through the
// configuration file.
package config
