// Package version exposes build metadata of the updater binary.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. They describe the updater itself; the version of the installed
// operating system is read from os-release by the config package.
package version
