// Package config loads staten settings from defaults, config.toml and the environment.
package config
