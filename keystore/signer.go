package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/miekg/pkcs11"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Signer implements crypto.Signer with a private key kept on a PKCS#11
// token.
type Signer struct {
	ModulePath string
	TokenLabel string
	KeyLabel   string
	KeyID      []byte
	PIN        string
	PublicKey  crypto.PublicKey
}

// Public returns the public key.
func (s *Signer) Public() crypto.PublicKey {
	return s.PublicKey
}

// digestInfoPrefix is the DER prefix of a DigestInfo for each hash, which
// CKM_RSA_PKCS expects in front of the digest.
var digestInfoPrefix = map[crypto.Hash][]byte{
	crypto.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// Sign signs digest on the token.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if _, pss := opts.(*rsa.PSSOptions); pss {
		return nil, errors.New("pkcs11: RSA-PSS is not supported")
	}

	mechanism, input, err := signInput(s.PublicKey, digest, opts.HashFunc())
	if err != nil {
		return nil, err
	}

	var sig []byte
	err = withSession(s.ModulePath, s.TokenLabel, s.PIN, func(p *pkcs11.Ctx, session pkcs11.SessionHandle) error {
		var match []*pkcs11.Attribute
		if len(s.KeyID) > 0 {
			match = append(match, pkcs11.NewAttribute(pkcs11.CKA_ID, s.KeyID))
		} else if s.KeyLabel != "" {
			match = append(match, pkcs11.NewAttribute(pkcs11.CKA_LABEL, s.KeyLabel))
		}
		objs, err := findObjects(p, session, pkcs11.CKO_PRIVATE_KEY, match...)
		if err != nil {
			return err
		}
		if len(objs) == 0 {
			return errors.New("pkcs11: private key not found")
		}

		if err := p.SignInit(session, []*pkcs11.Mechanism{mechanism}, objs[0]); err != nil {
			return fmt.Errorf("pkcs11: sign init failed: %w", err)
		}
		sig, err = p.Sign(session, input)
		if err != nil {
			return fmt.Errorf("pkcs11: sign failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, ok := s.PublicKey.(*ecdsa.PublicKey); ok {
		return ecdsaDER(sig)
	}
	return sig, nil
}

// signInput returns the mechanism and the data the token signs.
func signInput(pub crypto.PublicKey, digest []byte, hash crypto.Hash) (*pkcs11.Mechanism, []byte, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		prefix, ok := digestInfoPrefix[hash]
		if !ok {
			return nil, nil, fmt.Errorf("pkcs11: unsupported hash function %v", hash)
		}
		return pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil), append(append([]byte(nil), prefix...), digest...), nil
	case *ecdsa.PublicKey:
		return pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil), digest, nil
	}
	return nil, nil, fmt.Errorf("pkcs11: unsupported public key type %T", pub)
}

// ecdsaDER converts the r||s signature of CKM_ECDSA to the ASN.1 form
// crypto.Signer callers expect.
func ecdsaDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("pkcs11: malformed ECDSA signature of %d bytes", len(raw))
	}
	half := len(raw) / 2
	r := new(big.Int).SetBytes(raw[:half])
	sv := new(big.Int).SetBytes(raw[half:])

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(sv)
	})
	return b.Bytes()
}
