package archivator

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/lightclove/archivator/util"
)

// MaxPasswordAttempts is the password retry cap per opened archive; exceeding it fails
// the whole operation rather than looping indefinitely.
const MaxPasswordAttempts = 3

// ArchiveReader streams entries out of an archive created by ArchiveWriter.
//
// An ArchiveReader is exclusively owned by one restore run and is not safe for
// concurrent use.
type ArchiveReader struct {
	path     string
	zr       *zip.ReadCloser
	keyslot  []byte
	enc      *EncryptionContext
	attempts int
}

// OpenArchive opens the named archive and validates that its central directory is
// readable. A missing file is NotFoundError; an unreadable container is
// CorruptArchiveError.
func OpenArchive(path string) (*ArchiveReader, error) {
	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, &NotFoundError{Path: path}
	case err != nil:
		return nil, err
	case fi.IsDir():
		return nil, &CorruptArchiveError{Path: path, Err: errors.New("is a directory")}
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &CorruptArchiveError{Path: path, Err: err}
	}

	r := &ArchiveReader{path: path, zr: zr}

	for _, f := range zr.File {
		if f.Name != KeyslotName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			_ = zr.Close()
			return nil, &CorruptArchiveError{Path: path, Err: err}
		}

		data, err := io.ReadAll(io.LimitReader(rc, 4096))
		_ = rc.Close()
		if err != nil {
			_ = zr.Close()
			return nil, &CorruptArchiveError{Path: path, Err: err}
		}

		// A user file that merely reuses the reserved name is not a keyslot.
		if IsKeyslot(data) {
			r.keyslot = data
		}
		break
	}

	return r, nil
}

// Close releases the archive handle.
func (r *ArchiveReader) Close() error {
	if r.enc != nil {
		r.enc.Destroy()
	}

	return r.zr.Close()
}

// Encrypted reports whether the archive carries an encryption header. No password is
// required for the detection.
func (r *ArchiveReader) Encrypted() bool {
	return r.keyslot != nil
}

// VerifyPassword attempts to open the archive keyslot with the given password.
//
// A wrong password is reported as WrongPasswordError and counts against
// MaxPasswordAttempts; once the cap is exhausted every further call returns
// TooManyAttemptsError. A nil return means the password has been verified and
// extraction may proceed. The cap applies per opened ArchiveReader.
func (r *ArchiveReader) VerifyPassword(password []byte) error {
	if !r.Encrypted() {
		return nil
	}
	if defaultSuite == nil {
		return &EncryptionUnavailableError{}
	}
	if r.attempts >= MaxPasswordAttempts {
		return &TooManyAttemptsError{Attempts: r.attempts}
	}
	r.attempts++

	key, err := defaultSuite.OpenKeyslot(r.keyslot, password)
	if errors.Is(err, errKeyslotAuth) {
		return &WrongPasswordError{Attempt: r.attempts, Remaining: MaxPasswordAttempts - r.attempts}
	}
	if err != nil {
		return &CorruptArchiveError{Path: r.path, Err: err}
	}

	r.enc = &EncryptionContext{suite: defaultSuite, key: key, verified: true}
	return nil
}

// Verify streams every entry against its stored checksum before any extraction is
// attempted, so corruption is found up front rather than mid-restore.
func (r *ArchiveReader) Verify(ctx context.Context) error {
	for _, f := range r.zr.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rc, err := f.Open()
		if err == nil {
			_, err = util.CopyBufferWithContext(ctx, io.Discard, rc, nil)
			_ = rc.Close()
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			return &CorruptArchiveError{Path: r.path, Err: fmt.Errorf(`entry "%s": %w`, f.Name, err)}
		}
	}

	return nil
}

// Entries lists the archive's file entries with their original sizes.
//
// For encrypted entries the original size is read from the entry envelope header, which
// does not require the password.
func (r *ArchiveReader) Entries(ctx context.Context) ([]ArchiveEntry, error) {
	encrypted := r.Encrypted()
	entries := make([]ArchiveEntry, 0, len(r.zr.File))

	for _, f := range r.zr.File {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if f.Name == KeyslotName && encrypted || f.FileInfo().IsDir() {
			continue
		}

		entry := ArchiveEntry{
			Name:             f.Name,
			UncompressedSize: f.UncompressedSize64,
			CompressedSize:   f.CompressedSize64,
			Encrypted:        encrypted,
		}

		if encrypted {
			size, err := readEnvelopeSize(f)
			if err != nil {
				return nil, &CorruptArchiveError{Path: r.path, Err: fmt.Errorf(`entry "%s": %w`, f.Name, err)}
			}
			entry.UncompressedSize = size
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func readEnvelopeSize(f *zip.File) (uint64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var hdr [8]byte
	if _, err = io.ReadFull(rc, hdr[:]); err != nil {
		return 0, fmt.Errorf("read envelope header error: %w", err)
	}

	return binary.BigEndian.Uint64(hdr[:]), nil
}

// ReaderOptions customises ExtractAll.
type ReaderOptions struct {
	// Progress receives throttled statistics snapshots.
	Progress ProgressFunc

	// ProgressInterval is the entry count between updates, default
	// DefaultProgressInterval.
	ProgressInterval int

	// BufferSize is the streaming chunk size, default DefaultBufferSize.
	BufferSize int
}

// ExtractAll streams every entry to disk under dst, creating intermediate directories
// as needed.
//
// Per-entry failures are recorded in the returned statistics and extraction continues;
// files already extracted are left in place. Entry names that would escape dst are
// rejected as PathEscapeError and never written. Cancellation stops between entries and
// returns the statistics accumulated so far alongside ctx.Err().
func (r *ArchiveReader) ExtractAll(ctx context.Context, dst string, optFns ...func(*ReaderOptions)) (*RunStatistics, error) {
	opts := &ReaderOptions{ProgressInterval: DefaultProgressInterval, BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(opts)
	}

	if r.Encrypted() && !r.enc.Verified() {
		return nil, fmt.Errorf("archive is encrypted and the password has not been verified")
	}

	stats := &RunStatistics{}
	entries, err := r.Entries(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalFiles = len(entries)
	for _, e := range entries {
		stats.TotalBytes += int64(e.UncompressedSize)
	}

	if err = os.MkdirAll(dst, 0755); err != nil {
		return stats, fmt.Errorf("create destination directory error: %w", err)
	}

	buf := make([]byte, opts.BufferSize)
	encrypted := r.Encrypted()

	for _, f := range r.zr.File {
		select {
		case <-ctx.Done():
			report(opts.Progress, stats, opts.ProgressInterval, true)
			return stats, ctx.Err()
		default:
		}

		if f.Name == KeyslotName && encrypted {
			continue
		}

		if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
			stats.recordError(f.Name, &PathEscapeError{Name: f.Name})
			continue
		}

		target := filepath.Join(dst, filepath.FromSlash(f.Name))

		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(target, 0755); err != nil {
				stats.recordError(f.Name, err)
			}
			continue
		}

		written, err := r.extractFile(ctx, f, target, buf, encrypted)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				report(opts.Progress, stats, opts.ProgressInterval, true)
				return stats, err
			}

			stats.recordError(f.Name, err)
			continue
		}

		stats.Files++
		stats.Bytes += written
		report(opts.Progress, stats, opts.ProgressInterval, false)
	}

	report(opts.Progress, stats, opts.ProgressInterval, true)
	return stats, nil
}

func (r *ArchiveReader) extractFile(ctx context.Context, f *zip.File, target string, buf []byte, encrypted bool) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("create parent directory error: %w", err)
	}

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("create file error: %w", err)
	}

	src, err := f.Open()
	if err != nil {
		_ = out.Close()
		return 0, err
	}

	var written int64
	if encrypted {
		sealed, _, err := r.enc.suite.OpenEntry(r.enc.key, src)
		if err == nil {
			fr := flate.NewReader(sealed)
			written, err = util.CopyBufferWithContext(ctx, out, fr, buf)
			if err == nil {
				err = fr.Close()
			}
		}
		if err != nil {
			_, _ = out.Close(), src.Close()
			return written, err
		}
	} else if written, err = util.CopyBufferWithContext(ctx, out, src, buf); err != nil {
		_, _ = out.Close(), src.Close()
		return written, err
	}

	if err = src.Close(); err != nil {
		_ = out.Close()
		return written, err
	}

	return written, out.Close()
}
