// Package power asks the service manager to reboot into the newly installed version.
package power
