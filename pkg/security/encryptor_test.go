package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "valid password",
			password: "my-secure-password",
			wantErr:  false,
		},
		{
			name:     "empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && enc == nil {
				t.Error("NewEncryptor() returned nil without error")
			}
		})
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	enc, err := NewEncryptor("foo_bar")
	if err != nil {
		t.Fatalf("Failed to create Encryptor: %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{
			name:      "simple string",
			plaintext: []byte("hello world"),
		},
		{
			name:      "event json",
			plaintext: []byte(`{"title":"System heartbeat","message":"","type":"HEARTBEAT"}`),
		},
		{
			name:      "binary data",
			plaintext: []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD},
		},
		{
			name:      "large data",
			plaintext: bytes.Repeat([]byte("test"), 1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			if bytes.Contains(ciphertext, tt.plaintext) {
				t.Error("Ciphertext should not contain plaintext")
			}

			decrypted, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}

			if !bytes.Equal(decrypted, tt.plaintext) {
				t.Errorf("Decrypted data does not match original.\nGot:  %v\nWant: %v", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptSaltPrefix(t *testing.T) {
	enc, _ := NewEncryptor("foo_bar")

	a, err := enc.Encrypt([]byte("same"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := enc.Encrypt([]byte("same"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	rawA, _ := base64.StdEncoding.DecodeString(string(a))
	rawB, _ := base64.StdEncoding.DecodeString(string(b))

	if bytes.Equal(rawA[:SaltSize], rawB[:SaltSize]) {
		t.Error("two encryptions should use different salts")
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	enc, _ := NewEncryptor("right")
	other, _ := NewEncryptor("wrong")

	ciphertext, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := other.Decrypt(ciphertext); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Decrypt() with wrong password error = %v, want ErrDecrypt", err)
	}
}

func TestDecrypt_Errors(t *testing.T) {
	enc, _ := NewEncryptor("foo_bar")

	tests := []struct {
		name       string
		ciphertext []byte
	}{
		{name: "empty data", ciphertext: []byte{}},
		{name: "nil data", ciphertext: nil},
		{name: "not base64", ciphertext: []byte("%%%%")},
		{name: "shorter than salt", ciphertext: []byte(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))},
		{name: "corrupted data", ciphertext: []byte(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 100)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.ciphertext); !errors.Is(err, ErrDecrypt) {
				t.Errorf("Decrypt() error = %v, want ErrDecrypt", err)
			}
		})
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	enc, _ := NewEncryptor("foo_bar")
	salt := bytes.Repeat([]byte{7}, SaltSize)

	k1 := enc.DeriveKey(salt)
	k2 := enc.DeriveKey(salt)

	if len(k1) != 32 {
		t.Fatalf("DeriveKey() length = %d, want 32", len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveKey() should be deterministic for the same salt")
	}
	if bytes.Equal(k1, enc.DeriveKey(bytes.Repeat([]byte{8}, SaltSize))) {
		t.Error("DeriveKey() should differ for different salts")
	}
}

func TestPlaintextPassthrough(t *testing.T) {
	var c Cipher = Plaintext{}
	out, err := c.Encrypt([]byte("x"))
	if err != nil || string(out) != "x" {
		t.Errorf("Plaintext.Encrypt() = %q, %v", out, err)
	}
	out, err = c.Decrypt([]byte("y"))
	if err != nil || string(out) != "y" {
		t.Errorf("Plaintext.Decrypt() = %q, %v", out, err)
	}
}
