// Package config loads the daemon configuration from YAML or TOML files.
// Every key has a default, so a config file only needs the values that
// differ from Default.
package config
