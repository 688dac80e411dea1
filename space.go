package archivator

import (
	"os"

	"github.com/shirou/gopsutil/v3/disk"
)

// FreeSpace reports the number of bytes available on the volume containing path.
//
// The engine does not know platform specifics; DiskFreeSpace is the default
// implementation and callers may inject their own for testing.
type FreeSpace func(path string) (uint64, error)

// DiskFreeSpace queries free space via gopsutil.
func DiskFreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}

	return usage.Free, nil
}

// CheckSpace verifies that the volume containing dst has at least required bytes free,
// returning InsufficientSpaceError otherwise.
//
// The check is advisory: it can race with concurrent disk usage, and if dst does not
// exist or the volume cannot be queried the check is skipped rather than failed.
func CheckSpace(required uint64, dst string, free FreeSpace) error {
	if free == nil {
		free = DiskFreeSpace
	}

	if _, err := os.Stat(dst); err != nil {
		return nil
	}

	available, err := free(dst)
	if err != nil {
		return nil
	}

	if available < required {
		return &InsufficientSpaceError{Available: available, Required: required}
	}

	return nil
}
