package archivator

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyslotName is the reserved entry name holding the encryption header of an encrypted
// archive. It is always the first entry and is never extracted.
const KeyslotName = ".archive-keyslot"

const (
	encMagic   = "ARCV"
	encVersion = 1

	saltSize       = 16
	entryChunkSize = 64 * 1024

	// argon2id parameters for deriving the archive key from the password.
	kdfTime    = 1
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4

	// keyslot layout: magic(4) version(1) time(4) memory(4) threads(1) salt(16)
	// nonce(24) sealed check token (4 + tag).
	keyslotHeaderSize = 4 + 1 + 4 + 4 + 1 + saltSize

	// entry envelope header: original file size (8) followed by the base nonce (24).
	entryHeaderSize = 8 + chacha20poly1305.NonceSizeX
)

var errKeyslotAuth = errors.New("keyslot authentication failed")

// Suite is the authenticated encryption capability of an archive.
//
// It seals and opens the archive keyslot (password verification) and individual entry
// streams. Exactly one suite is resolved at startup; a nil defaultSuite means the
// environment cannot encrypt and NewEncryptionContext fails with
// EncryptionUnavailableError instead of silently writing plaintext.
type Suite interface {
	// NewKeyslot derives a fresh archive key from password and returns the keyslot
	// entry payload along with the key.
	NewKeyslot(password []byte) (keyslot, key []byte, err error)

	// OpenKeyslot re-derives the key from password and verifies it against the sealed
	// check token. A wrong password (or tampered keyslot) fails authentication.
	OpenKeyslot(keyslot, password []byte) (key []byte, err error)

	// SealEntry returns a WriteCloser encrypting everything written to it into dst.
	// The size argument is the original file size, carried as authenticated metadata.
	// Close must be called to write the final chunk.
	SealEntry(key []byte, size uint64, dst io.Writer) (io.WriteCloser, error)

	// OpenEntry returns a reader decrypting the entry stream from src, along with the
	// original file size recorded at seal time.
	OpenEntry(key []byte, src io.Reader) (io.Reader, uint64, error)
}

var defaultSuite Suite = chachaSuite{}

// EncryptionContext carries the encryption state of one backup or restore operation.
//
// The password is consumed at construction or verification time and only the derived key
// is retained; neither is ever logged or serialized.
type EncryptionContext struct {
	suite    Suite
	key      []byte
	keyslot  []byte
	verified bool
}

// NewEncryptionContext derives a fresh archive key from password for a backup run.
func NewEncryptionContext(password []byte) (*EncryptionContext, error) {
	if defaultSuite == nil {
		return nil, &EncryptionUnavailableError{}
	}

	keyslot, key, err := defaultSuite.NewKeyslot(password)
	if err != nil {
		return nil, fmt.Errorf("derive archive key error: %w", err)
	}

	return &EncryptionContext{suite: defaultSuite, key: key, keyslot: keyslot, verified: true}, nil
}

// Verified reports whether a password has been successfully verified against the archive.
func (c *EncryptionContext) Verified() bool {
	return c != nil && c.verified
}

// Destroy zeroes the derived key. The context must not be used afterwards.
func (c *EncryptionContext) Destroy() {
	if c == nil {
		return
	}

	for i := range c.key {
		c.key[i] = 0
	}
	c.key, c.verified = nil, false
}

// IsKeyslot reports whether data is an encryption header written by this package, so a
// user file that happens to use the reserved name is not mistaken for one.
func IsKeyslot(data []byte) bool {
	return len(data) >= keyslotHeaderSize && bytes.Equal(data[:4], []byte(encMagic)) && data[4] == encVersion
}

// chachaSuite implements Suite with argon2id key derivation and XChaCha20-Poly1305.
type chachaSuite struct{}

func (chachaSuite) NewKeyslot(password []byte) ([]byte, []byte, error) {
	keyslot := make([]byte, keyslotHeaderSize, keyslotHeaderSize+chacha20poly1305.NonceSizeX+4+chacha20poly1305.Overhead)
	copy(keyslot, encMagic)
	keyslot[4] = encVersion
	binary.BigEndian.PutUint32(keyslot[5:], kdfTime)
	binary.BigEndian.PutUint32(keyslot[9:], kdfMemory)
	keyslot[13] = kdfThreads

	salt := keyslot[14 : 14+saltSize]
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}

	key := argon2.IDKey(password, salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	// The check token lets OpenKeyslot verify a password without touching entry data.
	keyslot = append(keyslot, nonce...)
	keyslot = aead.Seal(keyslot, nonce, []byte(encMagic), keyslot[:keyslotHeaderSize])
	return keyslot, key, nil
}

func (chachaSuite) OpenKeyslot(keyslot, password []byte) ([]byte, error) {
	if !IsKeyslot(keyslot) {
		return nil, fmt.Errorf("malformed keyslot")
	}
	// header + nonce + sealed check token (4 plaintext bytes + tag).
	if len(keyslot) < keyslotHeaderSize+chacha20poly1305.NonceSizeX+4+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("malformed keyslot")
	}

	time := binary.BigEndian.Uint32(keyslot[5:])
	memory := binary.BigEndian.Uint32(keyslot[9:])
	threads := keyslot[13]
	salt := keyslot[14 : 14+saltSize]

	key := argon2.IDKey(password, salt, time, memory, threads, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := keyslot[keyslotHeaderSize : keyslotHeaderSize+chacha20poly1305.NonceSizeX]
	sealed := keyslot[keyslotHeaderSize+chacha20poly1305.NonceSizeX:]
	if _, err = aead.Open(nil, nonce, sealed, keyslot[:keyslotHeaderSize]); err != nil {
		return nil, errKeyslotAuth
	}

	return key, nil
}

func (chachaSuite) SealEntry(key []byte, size uint64, dst io.Writer) (io.WriteCloser, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	s := &entrySealer{aead: aead, dst: dst, buf: make([]byte, entryChunkSize)}
	binary.BigEndian.PutUint64(s.header[:8], size)
	if _, err = rand.Read(s.header[8:]); err != nil {
		return nil, err
	}

	if _, err = dst.Write(s.header[:]); err != nil {
		return nil, err
	}

	return s, nil
}

func (chachaSuite) OpenEntry(key []byte, src io.Reader) (io.Reader, uint64, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, 0, err
	}

	o := &entryOpener{aead: aead, src: bufio.NewReader(src)}
	if _, err = io.ReadFull(o.src, o.header[:]); err != nil {
		return nil, 0, fmt.Errorf("read entry header error: %w", err)
	}

	return o, binary.BigEndian.Uint64(o.header[:8]), nil
}

// chunkNonce derives the per-chunk nonce by folding the counter into the trailing bytes
// of the entry's base nonce. Unique per chunk within an entry; the random base keeps
// nonces unique across entries.
func chunkNonce(header []byte, counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, header[8:])

	var c [8]byte
	binary.BigEndian.PutUint64(c[:], counter)
	for i := 0; i < 8; i++ {
		nonce[chacha20poly1305.NonceSizeX-8+i] ^= c[i]
	}

	return nonce
}

// chunkAAD binds each chunk to the entry header, its position, and whether it is the last
// chunk, so reordering and truncation at chunk boundaries fail authentication.
func chunkAAD(header []byte, counter uint64, final bool) []byte {
	aad := make([]byte, entryHeaderSize+9)
	copy(aad, header)
	binary.BigEndian.PutUint64(aad[entryHeaderSize:], counter)
	if final {
		aad[entryHeaderSize+8] = 1
	}

	return aad
}

type entrySealer struct {
	aead    cipher.AEAD
	dst     io.Writer
	header  [entryHeaderSize]byte
	buf     []byte
	n       int
	counter uint64
	closed  bool
}

func (s *entrySealer) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		c := copy(s.buf[s.n:], p)
		s.n += c
		p = p[c:]

		if s.n == entryChunkSize {
			if err := s.flush(false); err != nil {
				return total - len(p), err
			}
		}
	}

	return total, nil
}

// Close seals the final chunk, which may be empty; an entry always ends with a chunk
// whose AAD carries the final flag so truncated streams are rejected on read.
func (s *entrySealer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	return s.flush(true)
}

func (s *entrySealer) flush(final bool) error {
	sealed := s.aead.Seal(nil, chunkNonce(s.header[:], s.counter), s.buf[:s.n], chunkAAD(s.header[:], s.counter, final))

	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(sealed)))
	if _, err := s.dst.Write(frame[:]); err != nil {
		return err
	}
	if _, err := s.dst.Write(sealed); err != nil {
		return err
	}

	s.counter++
	s.n = 0
	return nil
}

type entryOpener struct {
	aead    cipher.AEAD
	src     *bufio.Reader
	header  [entryHeaderSize]byte
	buf     []byte
	counter uint64
	final   bool
}

func (o *entryOpener) Read(p []byte) (int, error) {
	for len(o.buf) == 0 {
		if o.final {
			return 0, io.EOF
		}

		if err := o.next(); err != nil {
			return 0, err
		}

		if o.final && len(o.buf) == 0 {
			return 0, io.EOF
		}
	}

	n := copy(p, o.buf)
	o.buf = o.buf[n:]
	return n, nil
}

func (o *entryOpener) next() error {
	var frame [4]byte
	if _, err := io.ReadFull(o.src, frame[:]); err != nil {
		return fmt.Errorf("read entry frame error: %w", err)
	}

	n := binary.BigEndian.Uint32(frame[:])
	if n > entryChunkSize+uint32(o.aead.Overhead()) {
		return fmt.Errorf("entry frame too large: %d bytes", n)
	}

	sealed := make([]byte, n)
	if _, err := io.ReadFull(o.src, sealed); err != nil {
		return fmt.Errorf("read entry frame error: %w", err)
	}

	// The final flag in the AAD is what detects a stream truncated at a chunk
	// boundary: a non-final chunk that happens to end the stream fails to open.
	_, err := o.src.Peek(1)
	final := err != nil

	plain, err := o.aead.Open(sealed[:0], chunkNonce(o.header[:], o.counter), sealed, chunkAAD(o.header[:], o.counter, final))
	if err != nil {
		return fmt.Errorf("entry authentication failed: %w", err)
	}

	o.buf = plain
	o.counter++
	o.final = final
	return nil
}
