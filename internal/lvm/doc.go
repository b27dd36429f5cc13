// Package lvm drives the LVM2 command line tools.
//
// Reports are requested in JSON (--reportformat json) and decoded into typed
// records. Every failing command is returned as a *CommandError carrying the
// command line and its captured stderr.
package lvm
