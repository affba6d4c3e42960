// Package config loads flux-gateway configuration from a YAML file with
// ${VAR} environment expansion. The BACKEND_URL environment variable
// overrides the configured inference backend location.
package config
