// Package stealth generates one-time stealth keypairs and wraps their private
// keys for a recipient's viewing key.
//
// Wire format of an encrypted key:
//
//	ephPub (65) || nonce (12) || tag (16) || ciphertext
//
// The symmetric key is SHA-256 over the 32-byte X coordinate of the
// secp256k1 ECDH point; the cipher is AES-256-GCM.
package stealth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	pubKeyLen = 65
	nonceLen  = 12
	tagLen    = 16
	headerLen = pubKeyLen + nonceLen + tagLen
)

var (
	ErrInvalidViewingKey      = errors.New("stealth: viewing public key must be a 65-byte uncompressed secp256k1 point")
	ErrMalformedCiphertext    = errors.New("stealth: malformed ciphertext")
	ErrDecryptionFailed       = errors.New("stealth: authentication failed")
	ErrInvalidRecoveredKey    = errors.New("stealth: decrypted payload is not a valid private key")
	ErrSharedSecretAtInfinity = errors.New("stealth: shared secret is the point at infinity")
)

// Wrapped is the public result of wrapping one stealth key.
type Wrapped struct {
	StealthAddress common.Address
	EncryptedKey   []byte
}

// Wrapper generates stealth keys and encrypts them. The zero value is not
// usable; use NewWrapper.
type Wrapper struct {
	rand io.Reader
}

// NewWrapper returns a Wrapper reading entropy from r, or crypto/rand when r is nil.
func NewWrapper(r io.Reader) *Wrapper {
	if r == nil {
		r = rand.Reader
	}
	return &Wrapper{rand: r}
}

var defaultWrapper = NewWrapper(nil)

// Wrap generates a stealth keypair and encrypts its private key to viewingPubKey.
func Wrap(viewingPubKey []byte) (*Wrapped, error) {
	return defaultWrapper.Wrap(viewingPubKey)
}

// Wrap generates a stealth keypair and encrypts its private key to viewingPubKey.
// The private key only leaves this function inside the ciphertext.
func (w *Wrapper) Wrap(viewingPubKey []byte) (*Wrapped, error) {
	recipient, err := parseViewingKey(viewingPubKey)
	if err != nil {
		return nil, err
	}

	stealthKey, err := ecdsa.GenerateKey(crypto.S256(), w.rand)
	if err != nil {
		return nil, fmt.Errorf("stealth: generate stealth key: %w", err)
	}
	secret := crypto.FromECDSA(stealthKey)
	defer zero(secret)

	blob, err := w.encrypt(recipient, secret)
	if err != nil {
		return nil, err
	}

	return &Wrapped{
		StealthAddress: crypto.PubkeyToAddress(stealthKey.PublicKey),
		EncryptedKey:   blob,
	}, nil
}

// Encrypt seals plaintext to viewingPubKey in the stealth wire format.
func (w *Wrapper) Encrypt(viewingPubKey, plaintext []byte) ([]byte, error) {
	recipient, err := parseViewingKey(viewingPubKey)
	if err != nil {
		return nil, err
	}
	return w.encrypt(recipient, plaintext)
}

// Encrypt seals plaintext to viewingPubKey using crypto/rand.
func Encrypt(viewingPubKey, plaintext []byte) ([]byte, error) {
	return defaultWrapper.Encrypt(viewingPubKey, plaintext)
}

func (w *Wrapper) encrypt(recipient *ecdsa.PublicKey, plaintext []byte) ([]byte, error) {
	eph, err := ecdsa.GenerateKey(crypto.S256(), w.rand)
	if err != nil {
		return nil, fmt.Errorf("stealth: generate ephemeral key: %w", err)
	}

	key, err := deriveKey(recipient, eph.D.Bytes())
	if err != nil {
		return nil, err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(w.rand, nonce); err != nil {
		return nil, fmt.Errorf("stealth: read nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext; the wire format carries it first.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	out := make([]byte, 0, headerLen+len(ct))
	out = append(out, crypto.FromECDSAPub(&eph.PublicKey)...)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt or Wrap with the recipient's
// viewing private key. A tag mismatch returns ErrDecryptionFailed.
func Decrypt(viewingPriv *ecdsa.PrivateKey, blob []byte) ([]byte, error) {
	if len(blob) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedCiphertext, len(blob))
	}
	ephPub, err := crypto.UnmarshalPubkey(blob[:pubKeyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %v", ErrMalformedCiphertext, err)
	}
	nonce := blob[pubKeyLen : pubKeyLen+nonceLen]
	tag := blob[pubKeyLen+nonceLen : headerLen]
	ct := blob[headerLen:]

	key, err := deriveKey(ephPub, viewingPriv.D.Bytes())
	if err != nil {
		return nil, err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// RecoverStealthKey decrypts an encrypted stealth key and parses it.
func RecoverStealthKey(viewingPriv *ecdsa.PrivateKey, blob []byte) (*ecdsa.PrivateKey, error) {
	secret, err := Decrypt(viewingPriv, blob)
	if err != nil {
		return nil, err
	}
	defer zero(secret)

	key, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecoveredKey, err)
	}
	return key, nil
}

// ValidateViewingKey checks the viewing key encoding without using it.
func ValidateViewingKey(viewingPubKey []byte) error {
	_, err := parseViewingKey(viewingPubKey)
	return err
}

func parseViewingKey(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != pubKeyLen || b[0] != 0x04 {
		return nil, ErrInvalidViewingKey
	}
	pub, err := crypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidViewingKey, err)
	}
	return pub, nil
}

// deriveKey returns SHA-256 of the left-padded X coordinate of scalar*pub.
func deriveKey(pub *ecdsa.PublicKey, scalar []byte) ([]byte, error) {
	x, y := crypto.S256().ScalarMult(pub.X, pub.Y, scalar)
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, ErrSharedSecretAtInfinity
	}
	shared := make([]byte, 32)
	x.FillBytes(shared)
	defer zero(shared)

	sum := sha256.Sum256(shared)
	return sum[:], nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("stealth: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("stealth: create gcm: %w", err)
	}
	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
