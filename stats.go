package archivator

// FileError records one per-file failure that did not abort the run.
type FileError struct {
	// Path is the source path (backup) or entry name (restore) that failed.
	Path string
	Err  error
}

func (e FileError) Error() string {
	return `"` + e.Path + `": ` + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

// RunStatistics accumulates counters for one backup or restore run.
//
// It is mutated only by the pipeline that owns the run; progress reporters receive copies.
type RunStatistics struct {
	// Files is the number of entries fully processed so far.
	Files int
	// TotalFiles is the number of entries planned for the run.
	TotalFiles int
	// Bytes counts original bytes read (backup) or extracted bytes written (restore).
	Bytes int64
	// TotalBytes is the planned total corresponding to Bytes.
	TotalBytes int64
	// ArchiveSize is the size of the final archive file; set by backup only.
	ArchiveSize int64
	// Errors lists per-file failures in the order they occurred.
	Errors []FileError
}

// CompressionRatio returns 1 - archive/original.
//
// The value may be negative for small or incompressible inputs because of container
// overhead; it is reported as-is, never clamped.
func (s *RunStatistics) CompressionRatio() float64 {
	if s.Bytes == 0 {
		return 0
	}

	return 1 - float64(s.ArchiveSize)/float64(s.Bytes)
}

// Progress returns the completed fraction of the run in [0, 1].
func (s *RunStatistics) Progress() float64 {
	if s.TotalBytes == 0 {
		return 0
	}

	return float64(s.Bytes) / float64(s.TotalBytes)
}

func (s *RunStatistics) recordError(path string, err error) {
	s.Errors = append(s.Errors, FileError{Path: path, Err: err})
}
