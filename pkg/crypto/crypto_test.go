package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func newTestCipher(t *testing.T) *SegmentCipher {
	t.Helper()
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	c, err := NewSegmentCipher(DeriveKey("correct horse battery staple", salt))
	if err != nil {
		t.Fatalf("NewSegmentCipher: %v", err)
	}
	return c
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	plaintext := []byte("opus packets go here")

	sealed, err := c.Seal("seg-1", plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) != len(plaintext)+c.Overhead() {
		t.Errorf("sealed length = %d, want %d", len(sealed), len(plaintext)+c.Overhead())
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed payload contains the plaintext")
	}

	got, err := c.Open("seg-1", sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open = %q, want %q", got, plaintext)
	}
}

func TestSealUsesFreshNonces(t *testing.T) {
	c := newTestCipher(t)
	a, _ := c.Seal("seg", []byte("same"))
	b, _ := c.Seal("seg", []byte("same"))
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestOpenRejects(t *testing.T) {
	c := newTestCipher(t)
	sealed, err := c.Seal("seg-1", []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tcases := map[string]struct {
		id      string
		data    []byte
		wantErr error
	}{
		"wrong_segment_id": {id: "seg-2", data: sealed, wantErr: ErrDecryptionFailed},
		"tampered":         {id: "seg-1", data: tampered, wantErr: ErrDecryptionFailed},
		"too_short":        {id: "seg-1", data: sealed[:10], wantErr: ErrInvalidCiphertext},
		"other_key":        {id: "seg-1", data: sealed, wantErr: ErrDecryptionFailed},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			opener := c
			if name == "other_key" {
				opener = newTestCipher(t)
			}
			if _, err := opener.Open(tc.id, tc.data); !errors.Is(err, tc.wantErr) {
				t.Errorf("Open error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)
	a := DeriveKey("pass", salt)
	b := DeriveKey("pass", salt)
	other := DeriveKey("pass", bytes.Repeat([]byte{8}, SaltSize))

	if len(a) != KeySize {
		t.Fatalf("key length = %d, want %d", len(a), KeySize)
	}
	if !bytes.Equal(a, b) {
		t.Error("same passphrase and salt gave different keys")
	}
	if bytes.Equal(a, other) {
		t.Error("different salts gave the same key")
	}
}

func TestNewSegmentCipherRejectsBadKey(t *testing.T) {
	if _, err := NewSegmentCipher([]byte("short")); err == nil {
		t.Error("expected an error for a short key")
	}
}
