// Package keypair loads ed25519 identities from the on-disk JSON array
// format the original cluster CLI tooling uses for keypair files: a
// 64-byte secret key (seed || public key) serialized as a JSON array of
// unsigned bytes.
package keypair

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// Load reads an ed25519 private key from path.
func Load(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keypair: read %s: %w", path, err)
	}

	var bytes []byte
	if err := json.Unmarshal(raw, &bytes); err != nil {
		return nil, fmt.Errorf("keypair: parse %s: %w", path, err)
	}

	if len(bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair: %s has %d bytes, want %d", path, len(bytes), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(bytes), nil
}

// PublicKeyArray extracts the 32-byte public key as a fixed-size array,
// the shape the rest of the archiver passes around for pubkeys.
func PublicKeyArray(priv ed25519.PrivateKey) [32]byte {
	var out [32]byte
	copy(out[:], priv.Public().(ed25519.PublicKey))
	return out
}
