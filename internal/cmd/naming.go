package cmd

import (
	"fmt"
	"path/filepath"
	"time"
)

// DefaultArchiveName derives the output path for a new backup of src:
// "<source>_<DD-MM-YYYY>_<HH-MM>.zip" placed next to the source directory.
func DefaultArchiveName(src string, now time.Time) string {
	src = filepath.Clean(src)
	name := fmt.Sprintf("%s_%s_%s.zip", filepath.Base(src), now.Format("02-01-2006"), now.Format("15-04"))
	return filepath.Join(filepath.Dir(src), name)
}
