package archivator

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSpace(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		required  uint64
		dst       string
		free      FreeSpace
		wantShort bool
	}{
		{
			name:     "enough space",
			required: 100,
			dst:      dir,
			free:     func(string) (uint64, error) { return 1000, nil },
		},
		{
			name:      "not enough space",
			required:  1000,
			dst:       dir,
			free:      func(string) (uint64, error) { return 100, nil },
			wantShort: true,
		},
		{
			name:     "exact fit",
			required: 100,
			dst:      dir,
			free:     func(string) (uint64, error) { return 100, nil },
		},
		{
			name:     "query failure skips the check",
			required: 1 << 60,
			dst:      dir,
			free:     func(string) (uint64, error) { return 0, errors.New("statfs failed") },
		},
		{
			name:     "missing destination skips the check",
			required: 1 << 60,
			dst:      filepath.Join(dir, "does-not-exist"),
			free:     func(string) (uint64, error) { return 0, nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSpace(tt.required, tt.dst, tt.free)
			if !tt.wantShort {
				assert.NoError(t, err)
				return
			}

			var short *InsufficientSpaceError
			if assert.ErrorAs(t, err, &short) {
				assert.Equal(t, tt.required, short.Required)
			}
		})
	}
}
