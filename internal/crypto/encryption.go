package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

// keyEnvVar holds the base64 AES key used to protect SFTP private keys
// at rest. A key of any length works; non-32-byte input is stretched
// with SHA-256.
const keyEnvVar = "BEDROCKD_ENCRYPTION_KEY"

// EncryptionManager seals and opens secrets with AES-256-GCM.
type EncryptionManager struct {
	key []byte
}

// NewEncryptionManager derives the AES key from the environment. When no
// key is set, a random in-memory key is generated; it works for a session,
// but anything encrypted with it is unreadable after restart.
func NewEncryptionManager() (*EncryptionManager, error) {
	encoded := os.Getenv(keyEnvVar)
	if encoded == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		log.Printf("[Crypto] %s is not set; using an ephemeral key. Encrypted material will not survive a restart.", keyEnvVar)
		return &EncryptionManager{key: key}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid %s (must be base64): %w", keyEnvVar, err)
	}
	if len(decoded) != 32 {
		hash := sha256.Sum256(decoded)
		decoded = hash[:]
	}
	return &EncryptionManager{key: decoded}, nil
}

// Encrypt seals plaintext; the nonce is prepended to the ciphertext.
func (em *EncryptionManager) Encrypt(plaintext string) ([]byte, error) {
	gcm, err := em.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (em *EncryptionManager) Decrypt(ciphertext []byte) (string, error) {
	gcm, err := em.gcm()
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (em *EncryptionManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(em.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
