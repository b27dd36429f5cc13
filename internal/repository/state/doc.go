// Package state persists the small records the updater leaves on disk.
//
// The FileRepository stores one YAML document per file: the install journal
// kept while a core volume is being written, and the completion marker telling
// the surrounding environment that a reboot is required.
package state
