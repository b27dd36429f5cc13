// Package integration runs the updater end to end: a TLS update server with
// signed artifacts, an in-memory filesystem holding configuration, cache,
// block devices and boot entries, and a simulated LVM host.
package integration
