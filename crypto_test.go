package archivator

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyslotRoundTrip(t *testing.T) {
	suite := chachaSuite{}

	keyslot, key, err := suite.NewKeyslot([]byte("correct horse"))
	require.NoError(t, err)
	assert.True(t, IsKeyslot(keyslot))

	opened, err := suite.OpenKeyslot(keyslot, []byte("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, key, opened)
}

func TestOpenKeyslot_WrongPassword(t *testing.T) {
	suite := chachaSuite{}

	keyslot, _, err := suite.NewKeyslot([]byte("correct horse"))
	require.NoError(t, err)

	_, err = suite.OpenKeyslot(keyslot, []byte("battery staple"))
	assert.ErrorIs(t, err, errKeyslotAuth)
}

func TestOpenKeyslot_Tampered(t *testing.T) {
	suite := chachaSuite{}

	keyslot, _, err := suite.NewKeyslot([]byte("pw"))
	require.NoError(t, err)

	keyslot[len(keyslot)-1] ^= 0xff
	_, err = suite.OpenKeyslot(keyslot, []byte("pw"))
	assert.ErrorIs(t, err, errKeyslotAuth)
}

func TestOpenKeyslot_Truncated(t *testing.T) {
	suite := chachaSuite{}

	keyslot, _, err := suite.NewKeyslot([]byte("pw"))
	require.NoError(t, err)

	// every truncation must be reported as malformed, not as a wrong password, even
	// when the cut lands inside the sealed check token.
	for n := len(keyslot) - 1; n >= 0; n-- {
		_, err = suite.OpenKeyslot(keyslot[:n], []byte("pw"))
		require.Errorf(t, err, "truncated to %d bytes", n)
		assert.NotErrorIsf(t, err, errKeyslotAuth, "truncated to %d bytes", n)
	}
}

func TestIsKeyslot(t *testing.T) {
	assert.False(t, IsKeyslot(nil))
	assert.False(t, IsKeyslot([]byte("just a user file that reuses the name")))
	assert.False(t, IsKeyslot(bytes.Repeat([]byte{0}, 100)))
}

func sealedEntry(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := chachaSuite{}.SealEntry(key, uint64(len(plaintext)), &buf)
	require.NoError(t, err)

	_, err = w.Write(plaintext)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func TestEntryRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "single chunk", size: 1000},
		{name: "exactly one chunk", size: entryChunkSize},
		{name: "multiple chunks", size: entryChunkSize*2 + 311},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext := make([]byte, tt.size)
			_, err := rand.Read(plaintext)
			require.NoError(t, err)

			sealed := sealedEntry(t, key, plaintext)

			r, size, err := chachaSuite{}.OpenEntry(key, bytes.NewReader(sealed))
			require.NoError(t, err)
			assert.Equal(t, uint64(tt.size), size)

			opened, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, plaintext, opened)
		})
	}
}

func TestOpenEntry_Truncated(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	plaintext := make([]byte, entryChunkSize+500)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	sealed := sealedEntry(t, key, plaintext)

	// dropping the trailing final chunk makes the new last chunk fail authentication
	// because its AAD was sealed without the final flag.
	truncated := sealed[:entryHeaderSize+4+entryChunkSize+16]

	r, _, err := chachaSuite{}.OpenEntry(key, bytes.NewReader(truncated))
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	assert.Error(t, err)
}

func TestOpenEntry_TamperedChunk(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	sealed := sealedEntry(t, key, []byte("payload under authentication"))
	sealed[entryHeaderSize+10] ^= 0x01

	r, _, err := chachaSuite{}.OpenEntry(key, bytes.NewReader(sealed))
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	assert.Error(t, err)
}

func TestOpenEntry_WrongKey(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	sealed := sealedEntry(t, key, []byte("secret"))

	other := make([]byte, 32)
	_, err = rand.Read(other)
	require.NoError(t, err)

	r, _, err := chachaSuite{}.OpenEntry(other, bytes.NewReader(sealed))
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	assert.Error(t, err)
}

func TestEncryptionContext_Destroy(t *testing.T) {
	enc, err := NewEncryptionContext([]byte("pw"))
	require.NoError(t, err)
	assert.True(t, enc.Verified())

	enc.Destroy()
	assert.False(t, enc.Verified())
	assert.Nil(t, enc.key)
}
