// Package system contains the core domain types of the updater.
//
// It defines Package (what gets installed and where), System (the running
// OS identity and the packages it is made of), Remote (where updates come
// from), Volume and MountEntry (what the storage layer looks like), and the
// version helpers shared by every component. Values are built once at startup
// and treated as read-only afterwards.
package system
