// Package config provides user configuration management for the BluOS tools.
//
// This package manages a YAML configuration file holding preferences: a
// pinned player address, player nicknames, discovery and polling tunables and
// the bridge listener. Player state is never written here.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/bluos/config.yaml or $HOME/.config/bluos/config.yaml
//   - macOS: $HOME/.config/bluos/config.yaml
//   - Windows: %LOCALAPPDATA%\bluos\config.yaml
//
// # Example
//
//	version: 1
//	endpoint: 192.168.1.40
//	devices:
//	  kitchen:
//	    endpoint: 192.168.1.41
//	poll:
//	  long_poll_wait: 100s
//	  initial_backoff: 1s
//	  max_backoff: 30s
//	  backoff_exponent: 1.1
//	bridge:
//	  port: 8711
//
// Durations are written in Go syntax. Missing settings take the built-in
// defaults; command-line flags override the file.
package config
