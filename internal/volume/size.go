package volume

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// ErrInvalidSize is returned for sizes that are not in LVM notation.
var ErrInvalidSize = errors.New("invalid LV size")

// ParseSize converts an LVM size ("500M", "4G", "512") to bytes.
// Single-letter units are binary like in lvcreate, and a bare number is in MiB.
func ParseSize(size string) (uint64, error) {
	s := strings.TrimSpace(size)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidSize)
	}

	last := rune(s[len(s)-1])

	switch {
	case unicode.IsDigit(last):
		s += "MiB"
	case len(s) > 1 && unicode.IsDigit(rune(s[len(s)-2])) && strings.ContainsRune("kKmMgGtTpPeE", last):
		s += "iB"
	}

	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s': %w", ErrInvalidSize, size, err)
	}

	if bytes == 0 {
		return 0, fmt.Errorf("%w: '%s' is zero", ErrInvalidSize, size)
	}

	return bytes, nil
}
