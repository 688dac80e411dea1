package archivator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// BackupOptions customises Backup.
type BackupOptions struct {
	// Password enables encryption when non-nil.
	Password []byte

	// Progress receives throttled statistics snapshots.
	Progress ProgressFunc

	// ScanProgress, when non-nil, is reported to during the pre-flight scan.
	ScanProgress ScanProgressFunc

	// ProgressInterval is the entry count between updates, default
	// DefaultProgressInterval.
	ProgressInterval int

	// FreeSpace overrides the free-space query, default DiskFreeSpace.
	FreeSpace FreeSpace

	// BufferSize is the streaming chunk size, default DefaultBufferSize.
	BufferSize int
}

// Backup archives every regular file under src into a compressed, optionally encrypted
// archive at output.
//
// The source tree is scanned first to obtain the entry list and total size; the scan
// result gates the run on available disk space before any byte is written. Per-file
// failures are recorded in the returned statistics and the backup continues; a single
// bad file does not abort the run. On cancellation or a fatal error the partial archive
// is deleted and nothing is left at the output path.
func Backup(ctx context.Context, src, output string, optFns ...func(*BackupOptions)) (*RunStatistics, error) {
	opts := &BackupOptions{ProgressInterval: DefaultProgressInterval, BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(opts)
	}

	entries, scanErrs, err := Scan(ctx, src, func(o *ScanOptions) { o.Progress = opts.ScanProgress })
	if err != nil {
		return nil, err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}

	if err = CheckSpace(uint64(total), filepath.Dir(output), opts.FreeSpace); err != nil {
		return nil, err
	}

	var enc *EncryptionContext
	if opts.Password != nil {
		if enc, err = NewEncryptionContext(opts.Password); err != nil {
			return nil, err
		}
		defer enc.Destroy()
	}

	w, err := NewWriter(output, func(o *WriterOptions) {
		o.Encryption = enc
		o.BufferSize = opts.BufferSize
	})
	if err != nil {
		return nil, err
	}

	stats := w.Stats()
	stats.TotalFiles = len(entries)
	stats.TotalBytes = total
	stats.Errors = append(stats.Errors, scanErrs...)

	for _, e := range entries {
		select {
		case <-ctx.Done():
			_ = w.Abort()
			return stats, ctx.Err()
		default:
		}

		if enc != nil && e.Name == KeyslotName {
			stats.recordError(e.Path, fmt.Errorf(`file name "%s" is reserved in encrypted archives`, KeyslotName))
			continue
		}

		if _, err = w.Add(ctx, e.Path, e.Name); err != nil {
			if errors.Is(err, context.Canceled) {
				_ = w.Abort()
				return stats, context.Canceled
			}

			stats.recordError(e.Path, err)
			continue
		}

		report(opts.Progress, stats, opts.ProgressInterval, false)
	}

	if err = w.Finalize(); err != nil {
		return stats, err
	}

	report(opts.Progress, stats, opts.ProgressInterval, true)
	return stats, nil
}
