package archivator

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// NotFoundError indicates the backup source or the archive to restore from does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf(`path "%s" does not exist`, e.Path)
}

// NotADirectoryError indicates the backup source exists but is not a directory.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf(`path "%s" is not a directory`, e.Path)
}

// InsufficientSpaceError is returned by the pre-flight space check before any byte is
// written. Both figures are in bytes.
type InsufficientSpaceError struct {
	Available uint64
	Required  uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space: required %s, available %s (%s short)",
		humanize.IBytes(e.Required), humanize.IBytes(e.Available), humanize.IBytes(e.Required-e.Available))
}

// CorruptArchiveError indicates the archive failed the structural integrity check: the
// central directory could not be read, or an entry's checksum did not match.
type CorruptArchiveError struct {
	Path string
	Err  error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf(`archive "%s" is corrupt or not a valid archive: %v`, e.Path, e.Err)
}

func (e *CorruptArchiveError) Unwrap() error {
	return e.Err
}

// EncryptionUnavailableError is returned when encryption was requested but no encryption
// suite is available in this environment. An archive is never silently written unencrypted.
type EncryptionUnavailableError struct{}

func (e *EncryptionUnavailableError) Error() string {
	return "encryption requested but no encryption suite is available"
}

// WrongPasswordError records one failed password verification attempt. The password itself
// is never part of the message.
type WrongPasswordError struct {
	Attempt   int
	Remaining int
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("wrong password (attempt %d, %d remaining)", e.Attempt, e.Remaining)
}

// TooManyAttemptsError is returned once the password retry cap has been exhausted.
type TooManyAttemptsError struct {
	Attempts int
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many password attempts (%d)", e.Attempts)
}

// PathEscapeError indicates an archive entry whose name would resolve outside the restore
// destination. The entry is skipped, never written.
type PathEscapeError struct {
	Name string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf(`entry "%s" escapes the destination directory`, e.Name)
}
