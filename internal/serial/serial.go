// Package serial seals kit serial numbers so they are stored encrypted at rest.
package serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// Cipher seals and opens serial numbers.
type Cipher interface {
	Seal(plaintext string) ([]byte, error)
	Open(sealed []byte) (string, error)
}

// ErrNoIdentity is returned when the identity file holds no X25519 identity.
var ErrNoIdentity = errors.New("no age identity found")

// AgeCipher implements Cipher with an age X25519 identity. Anyone holding the
// identity file can read serials; the database alone is not enough.
type AgeCipher struct {
	identity *age.X25519Identity
}

var _ Cipher = (*AgeCipher)(nil)

// NewAgeCipher wraps an existing identity.
func NewAgeCipher(identity *age.X25519Identity) *AgeCipher {
	return &AgeCipher{identity: identity}
}

// LoadAgeCipher reads an identity file written by GenerateIdentity.
func LoadAgeCipher(path string) (*AgeCipher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return NewAgeCipher(x), nil
		}
	}
	return nil, ErrNoIdentity
}

// GenerateIdentity writes a new X25519 identity to path with mode 0600. It
// refuses to overwrite an existing file.
func GenerateIdentity(path string) (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# public key: %s\n", identity.Recipient())
	if _, err := fmt.Fprintln(f, identity.String()); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}

	return identity, f.Close()
}

// Seal encrypts a serial number to the identity's recipient.
func (c *AgeCipher) Seal(plaintext string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, c.identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return nil, fmt.Errorf("encrypting serial: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts a sealed serial number.
func (c *AgeCipher) Open(sealed []byte) (string, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), c.identity)
	if err != nil {
		return "", fmt.Errorf("creating decrypted reader: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, r); err != nil {
		return "", fmt.Errorf("decrypting serial: %w", err)
	}
	return sb.String(), nil
}
