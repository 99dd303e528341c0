// Package crypto provides wallet key handling, EIP-712 signing, and HMAC
// request authentication for the Polymarket CLOB API.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations follows the OWASP minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyfileVersion   = 1
)

// keyfileJSON is the on-disk format for an encrypted private key. All binary
// fields are base64 standard encoded.
type keyfileJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig names the sources LoadKey may resolve a private key from. A raw
// hex key takes precedence over an encrypted keyfile.
type KeyConfig struct {
	RawPrivateKey    string // hex, 0x prefix optional
	EncryptedKeyPath string // path to a file written by EncryptKey
	KeyPassword      string // password for EncryptedKeyPath
}

// LoadKey resolves a private key and returns it hex-encoded without prefix.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw private key is not valid hex: %w", err)
		}
		return k, nil
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read encrypted key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}
	return "", errors.New("crypto: no private key source configured")
}

// EncryptKey seals a hex private key with a password using PBKDF2-HMAC-SHA256
// derivation and AES-256-GCM, returning the keyfile JSON.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(keyBytes))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	out := keyfileJSON{
		Version:    keyfileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a keyfile produced by EncryptKey and returns the hex
// private key without prefix.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var stored keyfileJSON
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", fmt.Errorf("crypto: parse keyfile: %w", err)
	}
	if stored.Version != keyfileVersion {
		return "", fmt.Errorf("crypto: unsupported keyfile version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create GCM: %w", err)
	}
	return gcm, nil
}
