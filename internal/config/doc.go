// Package config loads the updater configuration.
//
// Two directories are read: the system configuration shipped with the OS
// image (config.toml and the minisign public key) and the remote configuration
// owned by the machine (remote.toml and the root certificate pinned for TLS).
// The running version and machine identity come from /etc/os-release and
// /etc/machine-id. Every failure is fatal and wrapped with ErrConfig.
package config
