package updater

import (
	"context"
	"errors"
	"fmt"

	"github.com/blang/semver"
	"github.com/pelletier/go-toml/v2"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

// ErrVersionDescriptor is returned when the remote version descriptor is unusable.
var ErrVersionDescriptor = errors.New("invalid remote version descriptor")

// Getter fetches a small document.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// VersionDescriptor is the document served at {update_url}/{os_name}/version.
type VersionDescriptor struct {
	Version string `toml:"version"`
}

// CheckUpdate returns the remote version when it is newer than the running one,
// nil otherwise.
func CheckUpdate(ctx context.Context, getter Getter, sys *system.System, remote *system.Remote) (*semver.Version, error) {
	url := remote.VersionURL(sys.OSName)

	logger.DebugKV(ctx, "Checking for update", "url", url)

	body, err := getter.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var descriptor VersionDescriptor
	if err = toml.Unmarshal(body, &descriptor); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVersionDescriptor, err)
	}

	remoteVersion, err := system.ParseVersion(descriptor.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVersionDescriptor, err)
	}

	logger.DebugKV(ctx, "Compared versions", "local", sys.Version.String(), "remote", remoteVersion.String())

	if sys.Version.GTE(remoteVersion) {
		return nil, nil //nolint:nilnil // No update is not an error.
	}

	return &remoteVersion, nil
}
