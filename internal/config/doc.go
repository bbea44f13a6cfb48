// Package config loads ingester and stream configuration from YAML, with
// ${VAR} expansion and an optional .env file beside the config file.
package config
