package archivator

import (
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/lightclove/archivator/internal"
)

// DefaultProgressInterval is how many completed entries pass between two progress
// updates. Throttling per entry count keeps reporting overhead bounded on trees with
// many small files.
const DefaultProgressInterval = 10

// ProgressFunc receives a snapshot of the run statistics after every
// DefaultProgressInterval completed entries and once more at completion.
//
// Implementations must not block the pipeline beyond formatting and emitting one update,
// and must not retain the snapshot's Errors slice across calls.
type ProgressFunc func(stats RunStatistics, done bool)

// NopProgress discards all updates.
func NopProgress(RunStatistics, bool) {}

// ScanProgressFunc receives the running file count and byte total while a source tree
// is being scanned.
type ScanProgressFunc func(files int, bytes int64)

// NewScanReporter writes a time-throttled "scanning" line so large trees show signs of
// life before the backup proper starts.
func NewScanReporter(logger *log.Logger) ScanProgressFunc {
	sometimes := rate.Sometimes{Interval: time.Second}

	return func(files int, bytes int64) {
		sometimes.Do(func() {
			logger.Printf("scanning: %d files (%s)", files, humanize.IBytes(uint64(bytes)))
		})
	}
}

// NewProgressBarReporter renders a byte-based terminal progress bar sized to totalBytes.
func NewProgressBarReporter(totalBytes int64, description string) ProgressFunc {
	bar := internal.DefaultBytes(totalBytes, description)

	return func(stats RunStatistics, done bool) {
		_ = bar.Set64(stats.Bytes)
		if done {
			_ = bar.Close()
		}
	}
}

// NewLogReporter writes one throttled log line per update, for non-terminal use.
func NewLogReporter(logger *log.Logger) ProgressFunc {
	sometimes := rate.Sometimes{Interval: 5 * time.Second}

	return func(stats RunStatistics, done bool) {
		emit := func() {
			logger.Printf("processed %d/%d files (%s/%s)",
				stats.Files, stats.TotalFiles,
				humanize.IBytes(uint64(stats.Bytes)), humanize.IBytes(uint64(stats.TotalBytes)))
		}

		if done {
			emit()
			return
		}

		sometimes.Do(emit)
	}
}

// report invokes fn with a snapshot if the entry count warrants an update.
func report(fn ProgressFunc, stats *RunStatistics, interval int, done bool) {
	if fn == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	if done || stats.Files%interval == 0 {
		fn(*stats, done)
	}
}
