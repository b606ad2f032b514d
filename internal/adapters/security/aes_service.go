package security

import (
	"EkgPlatform/internal/core/ports"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

var ErrInvalidKey = errors.New("encryption key must be 16 or 32 bytes")

// bodyCipher implements SecurityPort with AES-GCM. The nonce is prepended to
// the ciphertext.
type bodyCipher struct {
	gcm cipher.AEAD
	log zerolog.Logger
}

// ParseKey decodes a hex encoded AES-128 or AES-256 key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != 16 && len(key) != 32 {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// NewAESService creates the cipher used for dead-letter bodies at rest.
func NewAESService(encryptionKey []byte, baseLogger *zerolog.Logger) (ports.SecurityPort, error) {
	if len(encryptionKey) != 16 && len(encryptionKey) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("could not create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("could not create GCM: %w", err)
	}

	log := baseLogger.With().Str("component", "body_cipher").Logger()
	log.Info().Int("key_bits", len(encryptionKey)*8).Msg("Body cipher initialized")

	return &bodyCipher{gcm: gcm, log: log}, nil
}

func (s *bodyCipher) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize(), s.gcm.NonceSize()+len(plaintext)+s.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		s.log.Error().Err(err).Msg("Failed to generate nonce")
		return nil, fmt.Errorf("could not generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, plaintext, associatedData), nil
}

func (s *bodyCipher) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize+s.gcm.Overhead() {
		return nil, errors.New("ciphertext is too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		// Tampered data, a wrong key or a body moved to another record.
		s.log.Warn().Err(err).Msg("Failed to decrypt body")
		return nil, fmt.Errorf("could not decrypt: %w", err)
	}
	return plaintext, nil
}
