package internal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// NewLogger creates a logger whose prefix names the operation and its subject, so
// backup and restore lines remain distinguishable when output is captured.
func NewLogger(op, name string) *log.Logger {
	return log.New(os.Stderr, fmt.Sprintf(`%s "%s" - `, op, filepath.Base(name)), 0)
}
