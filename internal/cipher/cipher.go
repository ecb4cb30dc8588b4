// Package cipher encrypts message bodies before they reach durable storage.
//
// Records are serialized as "nonceHex:tagHex:cipherHex". Decryption never
// fails hard: anything that does not verify comes back as the stored string,
// so one bad row cannot break a history read.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"log"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32

	// kdfLabel is a fixed derivation label. Changing it, or the configured
	// secret, makes every previously stored record non-decryptable; there
	// is no multi-key fallback.
	kdfLabel = "salt"

	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// Box seals and opens message bodies with AES-256-GCM under a key derived
// from a process-wide secret.
type Box struct {
	key []byte
}

// New derives the encryption key from secret. An empty secret is a valid,
// degraded configuration: Encrypt and Decrypt become passthrough and a
// warning is logged.
func New(secret string) *Box {
	if secret == "" {
		log.Println("WARNING: no message secret configured, messages will be stored as PLAINTEXT")
		return &Box{}
	}

	key, err := scrypt.Key([]byte(secret), []byte(kdfLabel), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		// Only reachable with invalid cost parameters, which are constants.
		log.Printf("WARNING: key derivation failed (%v), messages will be stored as PLAINTEXT", err)
		return &Box{}
	}

	return &Box{key: key}
}

// Enabled reports whether a key is configured.
func (b *Box) Enabled() bool {
	return b.key != nil
}

// Encrypt seals plaintext into "nonceHex:tagHex:cipherHex" with a fresh
// random nonce. Without a configured key it returns plaintext unchanged.
func (b *Box) Encrypt(plaintext string) string {
	if b.key == nil {
		return plaintext
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		log.Printf("cipher: nonce generation failed: %v", err)
		return plaintext
	}

	aead, err := b.aead()
	if err != nil {
		log.Printf("cipher: %v", err)
		return plaintext
	}

	// Seal appends the 16-byte auth tag to the ciphertext.
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext)
}

// Decrypt opens a serialized record. Any failure, from missing key to
// malformed fields to an authentication tag mismatch, returns serialized
// unchanged rather than an error.
func (b *Box) Decrypt(serialized string) string {
	if b.key == nil {
		return serialized
	}

	parts := strings.Split(serialized, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return serialized
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return serialized
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return serialized
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return serialized
	}

	aead, err := b.aead()
	if err != nil {
		return serialized
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return serialized
	}

	return string(plaintext)
}

func (b *Box) aead() (gocipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	return gocipher.NewGCM(block)
}
