// Package updater drives an A/B update of the OS core image and boot entry.
//
// The Installer walks a fixed sequence of phases:
//
//	Start → FetchingEfiboot → FetchingCore → SelectingVolume →
//	ClearingStaleEntries → WritingCore → PublishingBoot → CleaningUp → Done
//
// Any failure moves it to Failed and is returned as a *PhaseError. Nothing is
// retried or rolled back: both artifacts are verified before the first
// destructive step, stale boot entries disappear before the volume is written,
// and the rename publishing the new entry is the commit point. Interrupting the
// process at any moment leaves a bootable system.
//
// Run is the entry point of the CLI: it guards against concurrent runs, loads
// the configuration, checks for an update and installs it.
package updater
