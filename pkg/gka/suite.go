package gka

import (
	"fmt"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
)

// CipherSuite identifies the algorithms used by a group.
type CipherSuite uint16

const (
	// X25519 HPKE for welcomes, XChaCha20-Poly1305 for group content,
	// SHA-256 HKDF for the key schedule and Ed25519 credential signatures.
	SuiteX25519ChaCha20Poly1305SHA256Ed25519 CipherSuite = 0x0001

	DefaultCipherSuite = SuiteX25519ChaCha20Poly1305SHA256Ed25519
)

func (s CipherSuite) Supported() bool {
	return s == SuiteX25519ChaCha20Poly1305SHA256Ed25519
}

func (s CipherSuite) String() string {
	switch s {
	case SuiteX25519ChaCha20Poly1305SHA256Ed25519:
		return "X25519_CHACHA20POLY1305_SHA256_Ed25519"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint16(s))
	}
}

func (s CipherSuite) hpke() hpke.Suite {
	return hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)
}

func (s CipherSuite) kem() kem.Scheme {
	return hpke.KEM_X25519_HKDF_SHA256.Scheme()
}
