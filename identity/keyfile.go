package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// ErrKeyExists is returned by WriteKeyFile rather than overwriting a key.
var ErrKeyExists = errors.New("key file already exists")

// LoadKeyFile reads a libp2p marshalled private key.
func LoadKeyFile(path string) (crypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key file %s: %w", path, err)
	}
	return priv, nil
}

// WriteKeyFile generates a new ed25519 key and writes it to path readable
// only by the owner.
func WriteKeyFile(path string) (crypto.PrivKey, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrKeyExists
	}
	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, err
	}
	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}
	return priv, nil
}
