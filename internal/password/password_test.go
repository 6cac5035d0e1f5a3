package password

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

const testIterations = 1000

func TestHashVerify(t *testing.T) {
	h := NewHasher(testIterations)

	encoded, err := h.Hash("s3cret!")
	require.NoError(t, err)

	assert.Equal(t, Success, h.Verify(encoded, "s3cret!"))
	assert.Equal(t, Failed, h.Verify(encoded, "s3cret"))
	assert.Equal(t, Failed, h.Verify(encoded, "S3cret!"))
	assert.Equal(t, Failed, h.Verify(encoded, ""))
}

func TestHash_Salted(t *testing.T) {
	h := NewHasher(testIterations)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, Success, h.Verify(a, "same"))
	assert.Equal(t, Success, h.Verify(b, "same"))
}

func TestHash_EmptyPassword(t *testing.T) {
	_, err := NewHasher(testIterations).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerify_DefaultParameters(t *testing.T) {
	encoded, err := Hash("admin-password")
	require.NoError(t, err)

	assert.Equal(t, Success, Verify(encoded, "admin-password"))
	assert.Equal(t, Failed, Verify(encoded, "admin-passwore"))
}

func TestVerify_RehashNeededOnFewerIterations(t *testing.T) {
	weak := NewHasher(testIterations)
	strong := NewHasher(testIterations * 2)

	encoded, err := weak.Hash("pass")
	require.NoError(t, err)

	assert.Equal(t, SuccessRehashNeeded, strong.Verify(encoded, "pass"))
	assert.Equal(t, Failed, strong.Verify(encoded, "other"))
}

func TestVerify_RehashNeededOnWeakerPRF(t *testing.T) {
	salt := []byte("0123456789abcdef")
	subkey := pbkdf2.Key([]byte("pass"), salt, testIterations, 32, sha256.New)

	raw := make([]byte, v3HeaderSize+len(salt)+len(subkey))
	raw[0] = formatV3
	binary.BigEndian.PutUint32(raw[1:], uint32(HMACSHA256))
	binary.BigEndian.PutUint32(raw[5:], testIterations)
	binary.BigEndian.PutUint32(raw[9:], uint32(len(salt)))
	copy(raw[v3HeaderSize:], salt)
	copy(raw[v3HeaderSize+len(salt):], subkey)
	encoded := base64.StdEncoding.EncodeToString(raw)

	h := NewHasher(testIterations)
	assert.Equal(t, SuccessRehashNeeded, h.Verify(encoded, "pass"))
	assert.Equal(t, Failed, h.Verify(encoded, "nope"))
}

func TestVerify_LegacyV2(t *testing.T) {
	salt := []byte("fedcba9876543210")
	subkey := pbkdf2.Key([]byte("legacy"), salt, v2Iterations, v2SubkeySize, sha1.New)

	raw := append([]byte{formatV2}, salt...)
	raw = append(raw, subkey...)
	encoded := base64.StdEncoding.EncodeToString(raw)

	h := NewHasher(testIterations)
	assert.Equal(t, SuccessRehashNeeded, h.Verify(encoded, "legacy"))
	assert.Equal(t, Failed, h.Verify(encoded, "Legacy"))
}

func TestVerify_MalformedHash(t *testing.T) {
	h := NewHasher(testIterations)

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "empty", encoded: ""},
		{name: "not base64", encoded: "%%%not-base64%%%"},
		{name: "unknown marker", encoded: base64.StdEncoding.EncodeToString([]byte{0x07, 1, 2, 3})},
		{name: "truncated v3 header", encoded: base64.StdEncoding.EncodeToString([]byte{formatV3, 0, 0})},
		{name: "truncated v2", encoded: base64.StdEncoding.EncodeToString([]byte{formatV2, 1, 2, 3})},
		{name: "huge salt length", encoded: base64.StdEncoding.EncodeToString([]byte{formatV3, 0, 0, 0, 2, 0, 0, 3, 232, 0xff, 0xff, 0xff, 0xff, 1})},
		{name: "iterations above ceiling", encoded: base64.StdEncoding.EncodeToString(append([]byte{formatV3, 0, 0, 0, 2, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 16}, make([]byte, 48)...))},
		{name: "unknown prf", encoded: base64.StdEncoding.EncodeToString(append([]byte{formatV3, 0, 0, 0, 9, 0, 0, 3, 232, 0, 0, 0, 16}, make([]byte, 48)...))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Failed, h.Verify(tt.encoded, "whatever"))
		})
	}
}

func TestResult(t *testing.T) {
	assert.True(t, Success.OK())
	assert.True(t, SuccessRehashNeeded.OK())
	assert.False(t, Failed.OK())
	assert.Equal(t, "failed", Failed.String())
}
