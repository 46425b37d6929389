// Package config loads, validates, and normalizes parish configuration.
//
// Configuration is stored as TOML, discovered at ~/.config/parish/config.toml
// or ./parish.toml, with every value defaulting to something usable so a
// fresh installation can run without a config file.
package config
