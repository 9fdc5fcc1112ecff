package session

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/goSession/jwt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrEnvelopeInvalid is returned by Open for any token that cannot be trusted.
	ErrEnvelopeInvalid = errors.New("session: invalid envelope")
	// ErrPartialEnvelope is returned when sealing an envelope with missing fields.
	ErrPartialEnvelope = errors.New("session: partial envelope")
)

const (
	minEncryptionKeySize = 32
	hkdfInfo             = "goSession envelope v1"
)

// Sealer converts envelopes to serialized session tokens and back.
type Sealer interface {
	Seal(Envelope) (string, error)
	Open(string) (Envelope, error)
}

// Signer is the signing half of a TokenSealer. *jwt.Manager satisfies it.
type Signer interface {
	Sign(jwt.EnvelopeClaims) (string, error)
	Parse(string) (*jwt.EnvelopeClaims, error)
}

// TokenSealer signs envelopes and optionally encrypts the signed form.
type TokenSealer struct {
	signer Signer
	aead   cipher.AEAD
	macKey []byte
}

// NewSealer returns a TokenSealer. An empty encryptionKey disables encryption and the
// sealed form is the bare JWS.
func NewSealer(signer Signer, encryptionKey []byte) (*TokenSealer, error) {
	if signer == nil {
		return nil, errors.New("session: nil signer")
	}
	s := &TokenSealer{signer: signer}
	if len(encryptionKey) == 0 {
		return s, nil
	}
	if len(encryptionKey) < minEncryptionKeySize {
		return nil, fmt.Errorf("session: encryption key must be at least %d bytes", minEncryptionKeySize)
	}

	kdf := hkdf.New(sha256.New, encryptionKey, nil, []byte(hkdfInfo))
	encKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, fmt.Errorf("session: derive encryption key: %w", err)
	}
	s.macKey = make([]byte, sha256.Size)
	if _, err := io.ReadFull(kdf, s.macKey); err != nil {
		return nil, fmt.Errorf("session: derive nonce key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("session: init aead: %w", err)
	}
	s.aead = aead
	return s, nil
}

// Seal serializes env. Identical envelopes produce identical output.
func (s *TokenSealer) Seal(env Envelope) (string, error) {
	if !env.Complete() {
		return "", ErrPartialEnvelope
	}

	jws, err := s.signer.Sign(jwt.EnvelopeClaims{
		AccessToken:  env.AccessToken,
		RefreshToken: env.RefreshToken,
		Expiry:       env.ExpiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("session: sign envelope: %w", err)
	}
	if s.aead == nil {
		return jws, nil
	}

	nonce := s.syntheticNonce([]byte(jws))
	sealed := s.aead.Seal(nonce, nonce, []byte(jws), []byte(hkdfInfo))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open verifies and decodes token. Every failure wraps ErrEnvelopeInvalid.
func (s *TokenSealer) Open(token string) (Envelope, error) {
	if token == "" {
		return Envelope{}, fmt.Errorf("%w: empty token", ErrEnvelopeInvalid)
	}

	jws := token
	if s.aead != nil {
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
		}
		if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
			return Envelope{}, fmt.Errorf("%w: ciphertext too short", ErrEnvelopeInvalid)
		}
		nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
		plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(hkdfInfo))
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
		}
		jws = string(plain)
	}

	claims, err := s.signer.Parse(jws)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}

	env := Envelope{
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		ExpiresAt:    claims.Expiry,
	}
	if !env.Complete() {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, ErrPartialEnvelope)
	}
	return env, nil
}

func (s *TokenSealer) syntheticNonce(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, s.macKey)
	mac.Write(plaintext)
	sum := mac.Sum(nil)

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	copy(nonce, sum[:s.aead.NonceSize()])
	return nonce
}
