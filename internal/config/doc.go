// Package config provides configuration loading and validation for the
// NightOwl capture service. It handles YAML-based configuration with struct
// validation, built-in defaults, and ${ENV} expansion for secrets.
package config
