package archivator

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/lightclove/archivator/util"
)

// DefaultBufferSize is the chunk size used when streaming file contents in and out of
// archive entries.
const DefaultBufferSize = 64 * 1024

// ArchiveEntry describes one file stored in an archive.
//
// Entries are immutable once written; Name is the archive's sole addressing key.
type ArchiveEntry struct {
	// Name is the normalized forward-slash path relative to the archive root.
	Name string
	// UncompressedSize is the original file size in bytes.
	UncompressedSize uint64
	// CompressedSize is the number of bytes the entry occupies in the archive.
	CompressedSize uint64
	// Encrypted reports whether the entry payload is an encryption envelope.
	Encrypted bool
}

// ArchiveWriter streams files into a compressed, optionally encrypted zip archive.
//
// The archive is written to a temporary file next to the requested output path;
// Finalize moves it into place atomically, Abort removes it. A cancelled or failed
// backup therefore never leaves a file at the final output path.
//
// An ArchiveWriter is exclusively owned by one backup run and is not safe for
// concurrent use.
type ArchiveWriter struct {
	dst   string
	tmp   *os.File
	zw    *zip.Writer
	enc   *EncryptionContext
	buf   []byte
	stats RunStatistics
	done  bool

	// headers of written entries; zip fills in the compressed sizes when each entry
	// is flushed, so Entries is complete only after Finalize.
	headers []writtenEntry
}

type writtenEntry struct {
	hdr *zip.FileHeader
	// size is the original file size; for encrypted entries hdr.UncompressedSize64
	// counts envelope bytes instead.
	size uint64
}

// WriterOptions customises NewWriter.
type WriterOptions struct {
	// Encryption, when non-nil, encrypts every entry with the context's archive key.
	Encryption *EncryptionContext

	// BufferSize is the streaming chunk size, default DefaultBufferSize.
	BufferSize int
}

// NewWriter opens a new archive that will be finalized at output.
//
// When encryption is enabled the keyslot entry is written first so that readers can
// detect an encrypted archive and verify passwords without touching file data.
func NewWriter(output string, optFns ...func(*WriterOptions)) (*ArchiveWriter, error) {
	opts := &WriterOptions{BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(opts)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), filepath.Base(output)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create temporary archive error: %w", err)
	}

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	w := &ArchiveWriter{dst: output, tmp: tmp, zw: zw, enc: opts.Encryption, buf: make([]byte, opts.BufferSize)}

	if w.enc != nil {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: KeyslotName, Method: zip.Store})
		if err == nil {
			_, err = f.Write(w.enc.keyslot)
		}
		if err != nil {
			_ = w.Abort()
			return nil, fmt.Errorf("write keyslot entry error: %w", err)
		}
	}

	return w, nil
}

// Add streams the named source file into the archive under the given archive-relative
// name, updating the run statistics once the file completes.
//
// An error opening or reading the source is returned for the caller to record; the
// writer stays usable for the next file. Note that a read error after the entry header
// has been created leaves a short entry in the archive; the restore side reports such
// entries through its own integrity checks.
func (w *ArchiveWriter) Add(ctx context.Context, path, name string) (ArchiveEntry, error) {
	entry := ArchiveEntry{Name: name, Encrypted: w.enc != nil}

	src, err := os.Open(path)
	if err != nil {
		return entry, fmt.Errorf("open file error: %w", err)
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return entry, fmt.Errorf("describe file error: %w", err)
	}

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: fi.ModTime()}
	hdr.SetMode(fi.Mode().Perm())
	if w.enc != nil {
		// The envelope holds deflated-then-sealed bytes; zip must not recompress.
		hdr.Method = zip.Store
	}

	f, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return entry, fmt.Errorf("create archive entry error: %w", err)
	}

	var written int64
	if w.enc != nil {
		sealer, err := w.enc.suite.SealEntry(w.enc.key, uint64(fi.Size()), f)
		if err != nil {
			return entry, fmt.Errorf("seal archive entry error: %w", err)
		}

		fw, err := flate.NewWriter(sealer, flate.BestCompression)
		if err != nil {
			return entry, err
		}

		if written, err = util.CopyBufferWithContext(ctx, fw, src, w.buf); err != nil {
			return entry, err
		}
		if err = fw.Close(); err == nil {
			err = sealer.Close()
		}
		if err != nil {
			return entry, fmt.Errorf("seal archive entry error: %w", err)
		}
	} else if written, err = util.CopyBufferWithContext(ctx, f, src, w.buf); err != nil {
		return entry, err
	}

	entry.UncompressedSize = uint64(written)
	w.headers = append(w.headers, writtenEntry{hdr: hdr, size: uint64(written)})

	w.stats.Files++
	w.stats.Bytes += written
	return entry, nil
}

// Stats returns the writer's running totals. The pointer stays owned by the writer.
func (w *ArchiveWriter) Stats() *RunStatistics {
	return &w.stats
}

// Entries returns the written entries with their final compressed sizes. Valid only
// after Finalize.
func (w *ArchiveWriter) Entries() []ArchiveEntry {
	entries := make([]ArchiveEntry, 0, len(w.headers))
	for _, e := range w.headers {
		entries = append(entries, ArchiveEntry{
			Name:             e.hdr.Name,
			UncompressedSize: e.size,
			CompressedSize:   e.hdr.CompressedSize64,
			Encrypted:        w.enc != nil,
		})
	}

	return entries
}

// Finalize writes the archive trailer and atomically moves the archive to the requested
// output path. The writer must not be used afterwards.
func (w *ArchiveWriter) Finalize() error {
	if w.done {
		return nil
	}
	w.done = true

	err := w.zw.Close()
	if err == nil {
		err = w.tmp.Sync()
	}
	if err2 := w.tmp.Close(); err == nil {
		err = err2
	}
	if err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("finalize archive error: %w", err)
	}

	if err = os.Rename(w.tmp.Name(), w.dst); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("move archive into place error: %w", err)
	}

	if fi, err := os.Stat(w.dst); err == nil {
		w.stats.ArchiveSize = fi.Size()
	}

	return nil
}

// Abort deletes the temporary artifact. Safe to call on every exit path; a no-op after
// Finalize.
func (w *ArchiveWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	_, _ = w.zw.Close(), w.tmp.Close()
	return os.Remove(w.tmp.Name())
}
