package archivator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// ErrPasswordRequired is returned when an archive is encrypted but no password and no
// interactive hook were provided.
var ErrPasswordRequired = errors.New("archive is encrypted and no password was provided")

// RestoreOptions customises Restore.
type RestoreOptions struct {
	// Password, when non-nil, is tried first against an encrypted archive.
	Password []byte

	// RequestPassword is the interactive hook called when the archive is encrypted
	// and no (or a wrong) password is at hand. It is retried up to
	// MaxPasswordAttempts in total.
	RequestPassword func() ([]byte, error)

	// Progress receives throttled statistics snapshots.
	Progress ProgressFunc

	// ProgressInterval is the entry count between updates, default
	// DefaultProgressInterval.
	ProgressInterval int

	// FreeSpace overrides the free-space query, default DiskFreeSpace.
	FreeSpace FreeSpace

	// BufferSize is the streaming chunk size, default DefaultBufferSize.
	BufferSize int
}

// Restore extracts the named archive into dst.
//
// The archive's structural integrity is verified up front; corruption aborts before
// anything is written. For encrypted archives the password is verified against the
// keyslot before extraction, retrying through RequestPassword up to the attempt cap.
// Per-entry failures are recorded and extraction continues; on cancellation the files
// already extracted are left in place and reported in the returned statistics.
func Restore(ctx context.Context, archive, dst string, optFns ...func(*RestoreOptions)) (*RunStatistics, error) {
	opts := &RestoreOptions{ProgressInterval: DefaultProgressInterval, BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(opts)
	}

	r, err := OpenArchive(archive)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err = r.Verify(ctx); err != nil {
		return nil, err
	}

	// the space check runs before any password prompt; entry sizes are readable
	// without the key, and a doomed restore should not ask for one.
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}

	var total uint64
	for _, e := range entries {
		total += e.UncompressedSize
	}

	volume := dst
	if _, err = os.Stat(volume); err != nil {
		volume = filepath.Dir(dst)
	}
	if err = CheckSpace(total, volume, opts.FreeSpace); err != nil {
		return nil, err
	}

	if r.Encrypted() {
		if err = verifyPassword(r, opts); err != nil {
			return nil, err
		}
	}

	return r.ExtractAll(ctx, dst, func(o *ReaderOptions) {
		o.Progress = opts.Progress
		o.ProgressInterval = opts.ProgressInterval
		o.BufferSize = opts.BufferSize
	})
}

func verifyPassword(r *ArchiveReader, opts *RestoreOptions) error {
	password := opts.Password
	for {
		if password == nil {
			if opts.RequestPassword == nil {
				return ErrPasswordRequired
			}

			var err error
			if password, err = opts.RequestPassword(); err != nil {
				return err
			}
		}

		err := r.VerifyPassword(password)
		password = nil
		if err == nil {
			return nil
		}

		var wrong *WrongPasswordError
		if errors.As(err, &wrong) && opts.RequestPassword != nil {
			if wrong.Remaining == 0 {
				return &TooManyAttemptsError{Attempts: wrong.Attempt}
			}
			continue
		}

		return err
	}
}
