// Package archivator creates and restores compressed, optionally encrypted archives of
// directory trees.
//
// The two entry points are Backup and Restore. Both stream file contents in fixed-size
// chunks, report progress through a throttled callback, poll their context between
// units of work for cooperative cancellation, and record per-file failures instead of
// aborting the whole run. A backup is written to a temporary file and moved into place
// only when complete, so a cancelled or failed run never leaves a partial archive at
// the output path; a cancelled restore leaves the files extracted so far in place.
//
// Encryption is a per-archive authenticated envelope: the password is stretched with
// argon2id into an archive key held in a keyslot entry, and every entry's compressed
// bytes are sealed with XChaCha20-Poly1305. Wrong passwords and tampered data are
// rejected before any file data is extracted.
package archivator
