// Package bootentry manages the EFI boot entries directory.
//
// Stale entries are cleared before the core volume is written so that no entry
// can ever point at a half-written image. The new entry is published by copying
// it next to its final name with a ".new" suffix, flushing storage and renaming
// it into place. That rename is the commit point of an update.
package bootentry
