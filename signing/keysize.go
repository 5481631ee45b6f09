package signing

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
)

var (
	ErrNilPublicKey   = errors.New("public key cannot be nil")
	ErrUnsupportedKey = errors.New("unsupported key type")
)

// defaultSignatureSize is used for keys of unknown size.
const defaultSignatureSize = 8192

// publicKeySignatureSize returns the maximum size in bytes of a signature
// made with the private key of pub.
func publicKeySignatureSize(pub crypto.PublicKey) (int, error) {
	switch k := pub.(type) {
	case nil:
		return 0, ErrNilPublicKey
	case *rsa.PublicKey:
		if k.N == nil {
			return 0, fmt.Errorf("%w: RSA key has nil modulus", ErrUnsupportedKey)
		}
		return k.Size(), nil
	case *ecdsa.PublicKey:
		if k.Curve == nil {
			return 0, fmt.Errorf("%w: ECDSA key has nil curve", ErrUnsupportedKey)
		}
		// DER SEQUENCE of two INTEGERs, each possibly with a padding byte.
		coordSize := (k.Curve.Params().BitSize + 7) / 8
		return 2*coordSize + 9, nil
	case ed25519.PublicKey:
		return ed25519.SignatureSize, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
}
