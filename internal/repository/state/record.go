package state

import "time"

// Journal records an install in progress. It exists from the moment a volume
// is selected until the new boot entry is committed.
type Journal struct {
	// OSName is the name of the system being updated.
	OSName string `yaml:"os_name"`
	// Phase is the last phase entered.
	Phase string `yaml:"phase"`
	// From is the running version.
	From string `yaml:"from"`
	// Target is the version being installed.
	Target string `yaml:"target"`
	// Volume is the device path of the destination volume, once selected.
	Volume string `yaml:"volume,omitempty"`
	// StartedAt is when the install started.
	StartedAt time.Time `yaml:"started_at"`
	// UpdatedAt is when the journal was last written.
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Marker records a completed update waiting for a reboot.
type Marker struct {
	// OSName is the name of the updated system.
	OSName string `yaml:"os_name"`
	// From is the version that was running during the update.
	From string `yaml:"from"`
	// To is the version the next boot selects.
	To string `yaml:"to"`
	// BootEntry is the committed boot entry.
	BootEntry string `yaml:"boot_entry"`
	// CompletedAt is when the boot entry was committed.
	CompletedAt time.Time `yaml:"completed_at"`
}
