package ssh

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	crypto "github.com/yourusername/bedrockd/internal/crypto"
)

// Key files protected at rest start with this marker, followed by the
// base64 AES-GCM ciphertext of the PEM content.
const encryptedKeyHeader = "ENC1\n"

// ReadPrivateKeyBytes loads an SFTP private key, transparently
// decrypting ENC1-wrapped files. Plain PEM files pass through as-is.
func ReadPrivateKeyBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}
	if !bytes.HasPrefix(data, []byte(encryptedKeyHeader)) {
		return data, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data[len(encryptedKeyHeader):])))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted key: %w", err)
	}

	manager, err := crypto.NewEncryptionManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption manager: %w", err)
	}
	plaintext, err := manager.Decrypt(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}
	return []byte(plaintext), nil
}
