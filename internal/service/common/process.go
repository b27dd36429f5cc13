//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// commLength is how many characters of an executable name the Linux process table keeps.
const commLength = 15

// ProcessLister returns the processes running on the machine.
type ProcessLister func() ([]ps.Process, error)

// AnotherInstanceRunning reports whether a process other than this one runs
// the executable named executable. The updater mutates shared storage and
// must never run twice at the same time.
func AnotherInstanceRunning(executable string, list ProcessLister) (bool, error) {
	if list == nil {
		list = ps.Processes
	}

	processList, err := list()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	if len(executable) > commLength {
		executable = executable[:commLength]
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == executable {
			return true, nil
		}
	}

	return false, nil
}

// ExecutableName returns the base name of the running executable as the
// process table reports it.
func ExecutableName() string {
	return filepath.Base(os.Args[0])
}
