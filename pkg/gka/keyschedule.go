package gka

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const secretSize = 32

const (
	applicationLabel = "application"
	handshakeLabel   = "handshake"
	welcomeLabel     = "parley welcome"
	commitLabel      = "parley commit"
	initLabel        = "init"
	epochLabel       = "epoch"
)

// deriveSecret expands secret into a new secret bound to label and the
// length prefixed context values.
func deriveSecret(secret []byte, label string, context ...[]byte) ([]byte, error) {
	info := []byte("parley " + label)
	for _, c := range context {
		info = binary.BigEndian.AppendUint32(info, uint32(len(c)))
		info = append(info, c...)
	}
	out := make([]byte, secretSize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, secret, info), out); err != nil {
		return nil, fmt.Errorf("deriving %s secret: %w", label, err)
	}
	return out, nil
}

// applicationKey is the key a single sender encrypts application messages
// with during an epoch.
func applicationKey(epochSecret, groupID []byte, epoch uint64, sender uint32) ([]byte, error) {
	return deriveSecret(epochSecret, applicationLabel, groupID, uint64Bytes(epoch), uint32Bytes(sender))
}

// handshakeKey hides the content of commits and proposals from outsiders. It
// is shared by all members and never protects the next epoch's secret.
func handshakeKey(epochSecret, groupID []byte, epoch uint64) ([]byte, error) {
	return deriveSecret(epochSecret, handshakeLabel, groupID, uint64Bytes(epoch))
}

// nextEpochSecret chains the current epoch secret with the commit secret that
// the committer sealed to every member's leaf key. A member that lost its leaf
// key, or a former holder of the epoch secret alone, cannot follow the chain.
func nextEpochSecret(epochSecret, commitSecret, groupID []byte, next uint64) ([]byte, error) {
	init, err := deriveSecret(epochSecret, initLabel, groupID, uint64Bytes(next))
	if err != nil {
		return nil, err
	}
	joiner := hkdf.Extract(sha256.New, commitSecret, init)
	return deriveSecret(joiner, epochLabel, groupID, uint64Bytes(next))
}

func uint64Bytes(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func uint32Bytes(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func newSecret(rand io.Reader) ([]byte, error) {
	secret := make([]byte, secretSize)
	if _, err := io.ReadFull(rand, secret); err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}
	return secret, nil
}

// seal encrypts plaintext with XChaCha20-Poly1305 under a random nonce which
// is prepended to the ciphertext.
func seal(rand io.Reader, key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func open(key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryption
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// pad appends a 0x80 marker followed by zeros up to a multiple of blockSize.
func pad(data []byte, blockSize int) []byte {
	out := make([]byte, 0, len(data)+blockSize+1)
	out = append(out, data...)
	out = append(out, 0x80)
	if blockSize > 1 {
		for len(out)%blockSize != 0 {
			out = append(out, 0)
		}
	}
	return out
}

func unpad(data []byte) ([]byte, error) {
	i := len(data) - 1
	for i >= 0 && data[i] == 0 {
		i--
	}
	if i < 0 || data[i] != 0x80 {
		return nil, ErrPadding
	}
	return data[:i], nil
}
