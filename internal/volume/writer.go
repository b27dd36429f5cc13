package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

var (
	// ErrImageTooLarge is returned when the image does not fit in the destination volume.
	ErrImageTooLarge = errors.New("image does not fit in destination LV")
	// ErrWriteImage is returned when copying the image to the volume fails.
	ErrWriteImage = errors.New("could not write image to LV")
)

// Writer copies a verified image byte for byte onto a volume device.
type Writer struct {
	fs afero.Fs
}

// NewWriter creates a writer over fs.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// Write copies the image at imagePath to the device of volume and syncs it.
// A volume with an unknown size skips the capacity check.
func (w *Writer) Write(ctx context.Context, imagePath string, volume system.Volume) (int64, error) {
	info, err := w.fs.Stat(imagePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriteImage, err)
	}

	imageSize := info.Size()
	if volume.Size > 0 && uint64(imageSize) > volume.Size { //nolint:gosec // Size is never negative.
		return 0, fmt.Errorf("%w: '%s' is %s, '%s' is %s", ErrImageTooLarge,
			imagePath, humanize.IBytes(uint64(imageSize)), //nolint:gosec // Size is never negative.
			volume.Path(), humanize.IBytes(volume.Size))
	}

	src, err := w.fs.Open(imagePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriteImage, err)
	}
	defer src.Close()

	dst, err := w.fs.OpenFile(volume.Path(), os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: could not open '%s': %w", ErrWriteImage, volume.Path(), err)
	}

	logger.InfoKV(ctx, "Writing image", "image", imagePath, "device", volume.Path(),
		"size", humanize.IBytes(uint64(imageSize))) //nolint:gosec // Size is never negative.

	written, err := io.Copy(dst, src)
	if err != nil {
		_ = dst.Close()
		return written, fmt.Errorf("%w: '%s': %w", ErrWriteImage, volume.Path(), err)
	}

	if err = dst.Sync(); err != nil {
		_ = dst.Close()
		return written, fmt.Errorf("%w: sync '%s': %w", ErrWriteImage, volume.Path(), err)
	}

	if err = dst.Close(); err != nil {
		return written, fmt.Errorf("%w: close '%s': %w", ErrWriteImage, volume.Path(), err)
	}

	return written, nil
}
