// Package common holds helpers shared by several services.
//
// It provides the HTTPS client used for update checks and downloads, which
// trusts only the configured root certificate and sends the machine identity
// headers with every request, and a guard that detects another running
// instance of the updater.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
