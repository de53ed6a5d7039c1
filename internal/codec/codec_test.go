package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/internal/cacheerrs"
)

// TestGzip_RoundTrip compresses and restores a payload.
func TestGzip_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("stratacache "), 200)

	compressed, err := Gzip{}.Compress(payload)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(payload))

	restored, err := Gzip{}.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, payload, restored)
}

// TestAESGCM_RoundTrip encrypts and decrypts with a stretched passphrase.
func TestAESGCM_RoundTrip(t *testing.T) {
	enc, err := NewAESGCM([]byte("short passphrase"))
	require.NoError(t, err)

	payload := []byte(`{"key":"k","value":42}`)
	sealed, err := enc.Encrypt(payload)
	require.NoError(t, err)
	require.NotEqual(t, payload, sealed)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, payload, opened)
}

// TestAESGCM_TamperedCiphertext fails authentication.
func TestAESGCM_TamperedCiphertext(t *testing.T) {
	enc, err := NewAESGCM([]byte("key"))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = enc.Decrypt(sealed)
	require.Error(t, err)

	_, err = enc.Decrypt([]byte{0x01})
	require.ErrorIs(t, err, errShortCiphertext)
}

// TestPipeline_RoundTrip applies compress-then-encrypt and reverses it.
func TestPipeline_RoundTrip(t *testing.T) {
	enc, err := NewAESGCM([]byte("pipeline key"))
	require.NoError(t, err)
	p := Pipeline{Compressor: Gzip{}, Encryptor: enc}

	payload := bytes.Repeat([]byte("entry payload "), 50)
	encoded, err := p.Encode(payload)
	require.NoError(t, err)

	decoded, err := p.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}

// TestPipeline_PassThrough leaves data untouched when no strategy is set.
func TestPipeline_PassThrough(t *testing.T) {
	p := Pipeline{}
	payload := []byte("plain")

	encoded, err := p.Encode(payload)
	require.NoError(t, err)
	require.Equal(t, payload, encoded)

	decoded, err := p.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}

// TestPipeline_DecodeCorruption surfaces ErrCorrupted for undecodable bytes.
func TestPipeline_DecodeCorruption(t *testing.T) {
	p := Pipeline{Compressor: Gzip{}}
	_, err := p.Decode([]byte("definitely not gzip"))
	require.ErrorIs(t, err, cacheerrs.ErrCorrupted)

	enc, err := NewAESGCM([]byte("k"))
	require.NoError(t, err)
	pe := Pipeline{Encryptor: enc}
	_, err = pe.Decode(bytes.Repeat([]byte{0xab}, 64))
	require.ErrorIs(t, err, cacheerrs.ErrCorrupted)
}
