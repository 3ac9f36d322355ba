// Package crypto implements the RSA challenge used to admit game clients.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Challenge is the plaintext a client proves it can encrypt with the
// server's public key.
const Challenge = "game client connection"

// Handshake errors.
var (
	ErrChallengeMismatch = errors.New("handshake challenge mismatch")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// RSA holds the server key pair. Only the public half ever leaves the process.
type RSA struct {
	privateKey *rsa.PrivateKey
	publicDER  []byte
}

// NewRSA wraps an existing private key.
func NewRSA(privateKey *rsa.PrivateKey) (*RSA, error) {
	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return &RSA{privateKey: privateKey, publicDER: der}, nil
}

// GenerateRSA creates a fresh key pair of the given size.
func GenerateRSA(bits int) (*RSA, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}
	return NewRSA(privateKey)
}

// PublicKey returns the DER encoded PKIX public key.
func (r *RSA) PublicKey() []byte {
	return append([]byte(nil), r.publicDER...)
}

// PublicKeyPEM returns the public key as a PEM block.
func (r *RSA) PublicKeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: r.publicDER})
}

// Decrypt decrypts a PKCS #1 v1.5 ciphertext.
func (r *RSA) Decrypt(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptPKCS1v15(nil, r.privateKey, ciphertext)
}

// VerifyChallenge decrypts ciphertext and checks it against Challenge.
func (r *RSA) VerifyChallenge(ciphertext []byte) error {
	plain, err := r.Decrypt(ciphertext)
	if err != nil {
		return fmt.Errorf("decrypting challenge: %w", err)
	}
	if subtle.ConstantTimeCompare(plain, []byte(Challenge)) != 1 {
		return ErrChallengeMismatch
	}
	return nil
}

// Encrypt encrypts plaintext with a DER encoded PKIX RSA public key.
func Encrypt(publicDER, plaintext []byte) ([]byte, error) {
	key, err := x509.ParsePKIXPublicKey(publicDER)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an RSA key", ErrInvalidPublicKey, key)
	}
	return rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
}

// EncryptChallenge produces the handshake ciphertext for a server key.
func EncryptChallenge(publicDER []byte) ([]byte, error) {
	return Encrypt(publicDER, []byte(Challenge))
}
